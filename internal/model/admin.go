package model

import "time"

// Admin は管理画面にログインできる管理者を表す。
type Admin struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
