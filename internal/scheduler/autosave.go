package scheduler

import (
	"context"
	"log/slog"
)

// AutosaveJob is the name the autosave task is registered under.
const AutosaveJob = "autosave"

// Saver persists sessions changed since their last save.
// Satisfied by *session.Manager.
type Saver interface {
	SaveDirty(ctx context.Context) (int, error)
}

// Autosave returns a task that flushes dirty sessions through saver.
func Autosave(saver Saver, logger *slog.Logger) Task {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		n, err := saver.SaveDirty(ctx)
		if n > 0 {
			logger.Debug("autosaved sessions", slog.Int("count", n))
		}
		return err
	}
}
