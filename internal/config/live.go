package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"llmexperimenter/internal/models"
)

// Holder publishes the most recently loaded configuration. Only the
// defaults and model catalogue are refreshed at runtime; everything else
// needs a restart.
type Holder struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewHolder wraps an already validated configuration.
func NewHolder(cfg *Config) *Holder {
	return &Holder{cfg: cfg}
}

// Current returns the live configuration. Callers must not mutate it.
func (h *Holder) Current() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Defaults returns the live global generation defaults.
func (h *Holder) Defaults() models.Defaults {
	return h.Current().Defaults
}

// Reload re-reads the backing file and swaps in its defaults and models.
func (h *Holder) Reload() error {
	cur := h.Current()
	next, err := Load(cur.Path())
	if err != nil {
		return err
	}
	merged := *cur
	merged.Defaults = next.Defaults
	merged.Models = next.Models
	h.mu.Lock()
	h.cfg = &merged
	h.mu.Unlock()
	return nil
}

// Watch reloads the holder whenever its backing file changes. It blocks
// until ctx is cancelled.
func (h *Holder) Watch(ctx context.Context) error {
	path := h.Current().Path()
	if path == "" {
		return errors.New("config has no backing file")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so atomic replace-by-rename is still observed.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	log.Info().Str("path", path).Msg("watching config for changes")

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("config watcher closed")
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(100 * time.Millisecond)
		case <-pending:
			pending = nil
			if err := h.Reload(); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("config reload failed, keeping previous values")
				continue
			}
			log.Info().Str("path", path).Msg("config reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("config watcher closed")
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

// SaveDefaults rewrites the defaults section of the YAML file at path,
// leaving every other section untouched.
func SaveDefaults(path string, d models.Defaults) error {
	if err := d.Validate(); err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return errors.New("config root must be a mapping")
	}
	var value yaml.Node
	if err := value.Encode(d); err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}

	root := doc.Content[0]
	replaced := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "defaults" {
			root.Content[i+1] = &value
			replaced = true
			break
		}
	}
	if !replaced {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "defaults"}
		root.Content = append(root.Content, key, &value)
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
