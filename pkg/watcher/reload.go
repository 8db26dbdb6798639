package watcher

import (
	"context"
	"fmt"
)

// Run starts w and calls reload with each batch of changed paths until ctx
// is done. Watcher and reload errors go to onErr and do not stop the loop,
// so a file that is deleted and recreated keeps being followed.
func Run(ctx context.Context, w *Watcher, reload func(ctx context.Context, changed []string) error, onErr func(error)) error {
	if onErr == nil {
		onErr = func(error) {}
	}
	prev := w.onError
	w.onError = func(err error) {
		prev(err)
		onErr(err)
	}

	if err := w.Start(); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case changed := <-w.Changes():
			if err := reload(ctx, changed); err != nil {
				onErr(fmt.Errorf("reloading %v: %w", changed, err))
			}
		}
	}
}
