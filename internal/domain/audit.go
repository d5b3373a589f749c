package domain

// AuditRecord stores the outcome of a single forwarded completion.
type AuditRecord struct {
	PK           string `json:"-"`
	SK           string `json:"-"`
	RequestID    string `json:"requestId"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	MessageCount int    `json:"messageCount"`
	Status       string `json:"status"`
	LatencyMs    int64  `json:"latencyMs"`
	CreatedAt    string `json:"createdAt"`
	TTL          int64  `json:"ttl"`
}
