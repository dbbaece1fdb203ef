// Package mock provides an in-memory sheet for local runs and tests without
// Google credentials.
package mock

import (
	"context"
	"sync"
)

// Appender implements sheets.Appender by recording rows in memory.
type Appender struct {
	mu    sync.Mutex
	rows  [][]any
	err   error
	calls int
}

// New creates an empty in-memory sheet.
func New() *Appender {
	return &Appender{}
}

// FailWith makes every following AppendRow return err. Pass nil to recover.
func (a *Appender) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// AppendRow records values unless a failure was injected or ctx is done.
func (a *Appender) AppendRow(ctx context.Context, values []any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.err != nil {
		return a.err
	}
	a.rows = append(a.rows, append([]any(nil), values...))
	return nil
}

// Rows returns a copy of the recorded rows in append order.
func (a *Appender) Rows() [][]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([][]any, len(a.rows))
	for i, r := range a.rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}

// Calls returns how many times AppendRow was invoked, including failures.
func (a *Appender) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
