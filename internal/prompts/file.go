package prompts

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// promptFile is the on-disk format:
//
//	[prompt]
//	name = "rag-system-prompt"
//	text = """..."""
type promptFile struct {
	Prompt struct {
		Name string `toml:"name"`
		Text string `toml:"text"`
	} `toml:"prompt"`
}

// FileSource serves a prompt from a TOML file and reloads it on change.
// A failed reload keeps the last good prompt.
type FileSource struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	text    string
	loadErr error

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
}

var _ Source = (*FileSource)(nil)

// NewFileSource loads path. A missing or invalid file is not fatal; the
// source reports the error until a valid file appears.
func NewFileSource(path string, logger *zap.Logger) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: prompt file path required", ErrInvalidPromptFile)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving prompt file path: %w", err)
	}

	f := &FileSource{path: abs, logger: logger}
	if err := f.reload(); err != nil {
		logger.Warn("prompt file not loaded", zap.String("path", abs), zap.Error(err))
	}
	return f, nil
}

// Name implements Source.
func (f *FileSource) Name() string {
	return "file"
}

// SystemPrompt implements Source.
func (f *FileSource) SystemPrompt(ctx context.Context) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.text == "" {
		if f.loadErr != nil {
			return "", f.loadErr
		}
		return "", ErrEmptyPrompt
	}
	return f.text, nil
}

// reload parses the file and swaps in its text on success.
func (f *FileSource) reload() error {
	text, err := loadPromptFile(f.path)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		if f.text == "" {
			f.loadErr = err
		}
		return err
	}
	f.text = text
	f.loadErr = nil
	return nil
}

func loadPromptFile(path string) (string, error) {
	var pf promptFile
	if _, err := toml.DecodeFile(path, &pf); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPromptFile, path, err)
	}
	if strings.TrimSpace(pf.Prompt.Text) == "" {
		return "", fmt.Errorf("%w: %s has no prompt text", ErrEmptyPrompt, path)
	}
	return pf.Prompt.Text, nil
}

// Watch reloads the file whenever it changes until ctx is done or Close is
// called. The parent directory is watched so editor rename-on-save and
// late file creation are both seen.
func (f *FileSource) Watch(ctx context.Context) error {
	f.watchMu.Lock()
	defer f.watchMu.Unlock()
	if f.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(f.path), err)
	}

	f.watcher = watcher
	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	go f.processEvents(ctx, watcher, f.stop, f.done)
	return nil
}

func (f *FileSource) processEvents(ctx context.Context, watcher *fsnotify.Watcher, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := f.reload(); err != nil {
				f.logger.Warn("prompt file reload failed, keeping previous prompt",
					zap.String("path", f.path),
					zap.Error(err))
				continue
			}
			f.logger.Info("prompt file reloaded", zap.String("path", f.path))
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("prompt file watcher error", zap.Error(err))
		}
	}
}

// Close stops watching.
func (f *FileSource) Close() error {
	f.watchMu.Lock()
	defer f.watchMu.Unlock()
	if f.watcher == nil {
		return nil
	}
	close(f.stop)
	err := f.watcher.Close()
	<-f.done
	f.watcher = nil
	return err
}
