// Package memory provides in-process stand-ins for the postgres plumbing.
package memory

import (
	"context"
	"sync"
)

type txKey struct{}

// TxManager serialises units of work. It does not roll back writes.
type TxManager struct {
	mu sync.Mutex
}

// NewTxManager constructs a TxManager.
func NewTxManager() *TxManager {
	return &TxManager{}
}

// WithinTx runs fn while holding the unit-of-work lock. Nested calls run inline.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, true))
}
