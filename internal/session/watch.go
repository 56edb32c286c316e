package session

import (
	"context"
	"fmt"

	"github.com/harrison/specrunner/internal/watcher"
)

// Watch feeds write notifications from w into the session until ctx is
// cancelled or the watcher's channels close. Capture sink writes go to
// HandleSinkWrite, a rewritten snapshot is reloaded and a write to the
// active document redraws it.
func (s *Session) Watch(ctx context.Context, w *watcher.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.Events():
			if !ok {
				return nil
			}
			if event.Op != watcher.FileWritten {
				s.cfg.Logger.LogDebug(fmt.Sprintf("Watched file %s %s", event.Path, event.Op))
				continue
			}
			if event.Path == s.cfg.SnapshotPath {
				if err := s.Reload(); err != nil {
					s.cfg.Logger.LogWarn(fmt.Sprintf("Failed to reload results snapshot: %v", err))
				}
				continue
			}
			if _, sink := s.cfg.Sinks.Framework(event.Path); !sink {
				s.Refresh(event.Path)
				continue
			}
			if err := s.HandleSinkWrite(ctx, event.Path); err != nil {
				s.cfg.Logger.LogError(fmt.Sprintf("Failed to process %s: %v", event.Path, err))
			}
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			s.cfg.Logger.LogWarn(fmt.Sprintf("File watcher error: %v", err))
		}
	}
}
