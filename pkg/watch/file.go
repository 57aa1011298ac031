package watch

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// FileTrigger bridges filesystem writes on a watched path into Observer
// notifications, so a locally appended source log triggers the same topic a
// message-queue producer would.
type FileTrigger struct {
	path     string
	topic    string
	observer Observer
	watcher  *fsnotify.Watcher
}

func NewFileTrigger(path, topic string, observer Observer) (*FileTrigger, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	return &FileTrigger{
		path:     path,
		topic:    topic,
		observer: observer,
		watcher:  watcher,
	}, nil
}

func (t *FileTrigger) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if err := t.observer.Notify(ctx, t.topic, nil); err != nil {
					zap.L().Error("failed to forward file notification", zap.String("path", t.path), zap.Error(err))
				}
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			zap.L().Error("watcher error", zap.String("path", t.path), zap.Error(err))
		}
	}
}

func (t *FileTrigger) Close() error {
	return t.watcher.Close()
}

// RegisterFileTrigger wires a FileTrigger for the given path into the fx
// lifecycle. No-op when path is empty.
func RegisterFileTrigger(lc fx.Lifecycle, observer Observer, path, topic string) {
	if path == "" {
		return
	}

	trigger, err := NewFileTrigger(path, topic, observer)
	if err != nil {
		zap.L().Warn("source log watch disabled", zap.String("path", path), zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go trigger.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return trigger.Close()
		},
	})
}
