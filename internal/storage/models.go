package storage

import "time"

// Interaction is one row of the append-only LLM interaction log.
type Interaction struct {
	ID          int64
	RequestID   string
	UserID      string
	UserQuery   string
	LLMResponse string
	CreatedAt   time.Time
}

type Favourite struct {
	ID          string
	UserID      string
	PromptID    int64
	PromptTitle string
	CreatedAt   time.Time
}

type Report struct {
	ID         string
	UserID     string
	RequestID  string
	ReportText *string
	CreatedAt  time.Time
}
