package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch watches path for writes and calls onChange with a freshly loaded
// Config (base config plus path) each time. onChange can fire at any time,
// including while an audit is running; cmd/cloudwarden only stores the
// result and reads it at the next scheduled run. The returned stop
// function closes the underlying watcher.
func Watch(path string, onChange func(*Config)) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load([]string{path})
				if err != nil {
					log.Error().Err(err).Str("path", path).Msg("config reload failed")
					continue
				}
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Str("path", path).Msg("config watcher error")
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
