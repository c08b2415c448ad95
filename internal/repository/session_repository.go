package repository

import (
	"context"
	"time"
)

// SessionRecord はゲートウェイ再起動後にストアを作り直すための情報。
type SessionRecord struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// ログイン中セッションの登録簿。
type SessionRepository interface {
	Save(ctx context.Context, rec SessionRecord, ttl time.Duration) error
	Find(ctx context.Context, sessionID string) (SessionRecord, error)
	Delete(ctx context.Context, sessionID string) error
}
