package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// Editors tend to write a file in several steps; changes closer together
// than this trigger a single rerun.
const watchDebounce = 500 * time.Millisecond

// Watch runs a batch, then reruns it every time the database list or the SQL
// file changes, until ctx is cancelled. Setup errors are logged and the
// watch continues so that a fixed file is picked up.
func (app *Application) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %v", err)
	}
	defer watcher.Close()

	watched := make(map[string]struct{})
	for _, file := range []string{app.settings.DBList, app.settings.SQLFile} {
		abs, err := filepath.Abs(file)
		if err != nil {
			return fmt.Errorf("resolving %s: %v", file, err)
		}
		watched[abs] = struct{}{}
	}
	// Watch directories rather than files so renames and recreations are seen.
	dirs := make(map[string]struct{})
	for file := range watched {
		dirs[filepath.Dir(file)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %v", dir, err)
		}
	}

	app.runLogged(ctx)

	g, ctx := errgroup.WithContext(ctx)
	trigger := make(chan struct{}, 1)

	g.Go(func() error {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				abs, err := filepath.Abs(event.Name)
				if err != nil {
					continue
				}
				if _, ok := watched[abs]; !ok {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				app.logger.Debugf("Change detected in %s", event.Name)
				select {
				case trigger <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				app.logger.Errorf("File watcher error: %v", err)
			case <-ctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-trigger:
			case <-ctx.Done():
				return nil
			}
			select {
			case <-time.After(watchDebounce):
			case <-ctx.Done():
				return nil
			}
			select {
			case <-trigger:
			default:
			}
			app.logger.Info("Input files changed, rerunning expiry check")
			app.runLogged(ctx)
		}
	})

	return g.Wait()
}

func (app *Application) runLogged(ctx context.Context) {
	if _, err := app.Run(ctx); err != nil {
		app.logger.Error(err.Error())
	}
}
