package models

import "time"

// TurnUsage is one per-agent-turn usage ledger row. Recording is
// best-effort and only active when a database is configured.
type TurnUsage struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	SessionID  string     `gorm:"index" json:"sessionId"`
	TurnID     string     `gorm:"index" json:"turnId"`
	Round      int        `json:"round"`
	Agent      string     `json:"agent"`
	TurnSource TurnSource `json:"turnSource"`
	Model      string     `json:"model"`
	DurationMs int64      `json:"durationMs"`
	CostUSD    float64    `json:"costUsd"`
	TimedOut   bool       `json:"timedOut"`
	Failed     bool       `json:"failed"`
	CreatedAt  time.Time  `json:"createdAt"`
}
