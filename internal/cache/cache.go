// Package cache provides the answer cache used by the assistant engine.
package cache

import (
	"context"
	"time"
)

// AnswerCache stores assistant answers keyed by a digest of the question and
// the business snapshot it was answered against. A miss returns ok=false with
// a nil error.
type AnswerCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, answer string, ttl time.Duration) error
}

// Noop is used when no Redis instance is configured. Every lookup misses.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}

func (n *Noop) Set(ctx context.Context, key string, answer string, ttl time.Duration) error {
	return nil
}
