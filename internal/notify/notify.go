package notify

import (
	"context"
	"errors"

	"github.com/oshokin/release-updater/internal/domain/update"
)

// Notifier delivers the report of a failed run.
type Notifier interface {
	Notify(ctx context.Context, report update.Report) error
}

// Nop discards every report.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, update.Report) error {
	return nil
}

// Multi sends the report to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, report update.Report) error {
	errs := make([]error, 0, len(m))
	for _, n := range m {
		errs = append(errs, n.Notify(ctx, report))
	}

	return errors.Join(errs...)
}
