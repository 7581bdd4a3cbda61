package keycodec

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileSecret loads the signing secret from a file and hot-reloads it when
// the file changes. The previously loaded secret is retained so keys signed
// just before a rotation keep verifying during the grace window.
type FileSecret struct {
	path string

	mu       sync.RWMutex
	current  []byte
	previous []byte
	mtime    time.Time
}

func NewFileSecret(path string) (*FileSecret, error) {
	fs := &FileSecret{path: path}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileSecret) Secrets() [][]byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := [][]byte{f.current}
	if len(f.previous) > 0 {
		out = append(out, f.previous)
	}
	return out
}

func (f *FileSecret) load() error {
	info, err := os.Stat(f.path)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	secret := []byte(strings.TrimSpace(string(raw)))
	if len(secret) == 0 {
		log.Printf("Key Secret: file %s is empty, keeping current secret", f.path)
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if string(secret) != string(f.current) {
		if len(f.current) > 0 {
			f.previous = f.current
		}
		f.current = secret
	}
	f.mtime = info.ModTime()
	return nil
}

// StartWatcher reloads the secret on file change events, with a slow polling
// loop as a safety net for filesystems fsnotify cannot watch.
func (f *FileSecret) StartWatcher(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	usePolling := false

	if err != nil {
		log.Printf("Key Secret Watcher: fsnotify failed (%v), falling back to polling", err)
		usePolling = true
	} else if err := watcher.Add(f.path); err != nil {
		log.Printf("Key Secret Watcher: failed to watch %s (%v), falling back to polling", f.path, err)
		usePolling = true
		watcher.Close()
	}

	go func() {
		if usePolling {
			return
		}
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					time.Sleep(100 * time.Millisecond)
					if err := f.load(); err != nil {
						log.Printf("Key Secret Watcher: reload failed: %v", err)
					} else {
						log.Printf("Key Secret Watcher: secret reloaded from %s", f.path)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Key Secret Watcher error: %v", err)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.reloadIfChanged()
			}
		}
	}()
}

func (f *FileSecret) reloadIfChanged() {
	info, err := os.Stat(f.path)
	if err != nil {
		return
	}
	f.mu.RLock()
	changed := info.ModTime().After(f.mtime)
	f.mu.RUnlock()
	if !changed {
		return
	}
	if err := f.load(); err != nil {
		log.Printf("Key Secret Watcher: poll reload failed: %v", err)
	}
}
