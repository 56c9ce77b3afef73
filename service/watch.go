package service

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// WatchModel retries Initialize every time modelSource is created or written
// until the service is Ready or ctx is done. It returns nil once Ready.
func (s *Service) WatchModel(ctx context.Context, modelSource, schemaSource string) error {
	if s.State() == Ready {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create model watcher")
	}
	defer watcher.Close()

	dir := filepath.Dir(modelSource)
	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "watch %s", dir)
	}

	// the file may have landed before the watch was in place
	if s.tryInitialize(ctx, modelSource, schemaSource) {
		return nil
	}

	target := filepath.Clean(modelSource)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("model watcher closed")
			}
			if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) {
				continue
			}
			if s.tryInitialize(ctx, modelSource, schemaSource) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("model watcher closed")
			}
			s.logger.Warn("model watcher error", zap.Error(err))
		}
	}
}

func (s *Service) tryInitialize(ctx context.Context, modelSource, schemaSource string) bool {
	err := s.Initialize(ctx, modelSource, schemaSource)
	if err == nil || errors.Is(err, ErrAlreadyInitialized) {
		return true
	}
	s.logger.Info("model not ready yet", zap.String("path", modelSource), zap.Error(err))
	return false
}
