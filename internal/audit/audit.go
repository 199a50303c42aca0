// Package audit records every served search in an append-only ledger.
package audit

import (
	"context"
	"errors"

	"github.com/seanblong/projectsearch/pkg/models"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("audit ledger closed")

// Ledger is a sink for audit records. Append must write a record completely
// or not at all and must be safe for concurrent use.
type Ledger interface {
	Append(ctx context.Context, rec models.AuditRecord) error
	Close() error
}

// Pinger is implemented by ledgers that can report whether their backing
// store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Multi appends to every ledger in order. A failing ledger does not stop the
// others; all errors are joined.
type Multi []Ledger

func (m Multi) Append(ctx context.Context, rec models.AuditRecord) error {
	var errs []error
	for _, l := range m {
		if err := l.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, l := range m {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ping checks every member that implements Pinger and stops at the first
// failure.
func (m Multi) Ping(ctx context.Context) error {
	for _, l := range m {
		if p, ok := l.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
