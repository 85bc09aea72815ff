package model

import (
	"encoding/json"
	"time"
)

// GeneratedPlan はAI旅程生成の利用記録を表す。
// RequestとResponseは生成サービスとの入出力をそのまま保持する。
type GeneratedPlan struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Request   json.RawMessage `json:"request"`
	Response  json.RawMessage `json:"response"`
	CreatedAt time.Time       `json:"created_at"`
}
