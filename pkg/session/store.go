// Package session maps conversation keys to backend session identifiers.
package session

import (
	"context"
	"time"
)

// Record is the persisted mapping for one conversation.
type Record struct {
	ConversationKey string    `json:"conversation_key"`
	SessionID       string    `json:"session_id"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Store persists session records keyed by conversation key.
// Get reports ok=false for an unknown key.
type Store interface {
	Get(ctx context.Context, key string) (rec Record, ok bool, err error)
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Record, error)
	Close() error
}
