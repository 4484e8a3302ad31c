// Package runlog records completed investigations. Every sink implements
// core.Sink; failures are returned to the caller, which logs and ignores them.
package runlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
)

// Multi fans a record out to several sinks. Every sink is called even when an
// earlier one fails; the errors are joined.
type Multi []core.Sink

// Report implements core.Sink.
func (m Multi) Report(ctx context.Context, record core.RunRecord) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Report(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Closer is implemented by sinks that hold resources.
type Closer interface {
	Close() error
}

// Close closes every sink that implements Closer.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %T: %w", s, err))
			}
		}
	}
	return errors.Join(errs...)
}
