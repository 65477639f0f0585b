// Package seed loads Component Registry definitions (§4.1) from YAML files
// on disk and registers files added to that directory later, so an
// operator can add a component without restarting the daemon. Edits to an
// already-loaded file are not applied until the daemon restarts.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/flowforge/orchestrator/internal/component"
	"github.com/flowforge/orchestrator/internal/telemetry"
)

// Loader watches a directory of component definition files (one
// model.ComponentDefinition per YAML document, `*.yaml`/`*.yml`) and
// registers each into a component.Registry. Inline components (whose
// ExecuteFn is a Go closure with no YAML representation) are registered by
// the caller before Load runs; this loader only ever seeds
// container/remote-backed definitions.
//
// component.Registry treats definitions as immutable once registered
// (§4.1), so Watch only ever registers files it has not seen before; an
// edit to an already-loaded file is logged, not applied, since there is no
// Replace on the registry to apply it to.
type Loader struct {
	dir      string
	registry *component.Registry
	logger   telemetry.Logger

	mu   sync.Mutex
	seen map[string]bool
}

// New constructs a Loader for dir, a directory of component definition
// files.
func New(dir string, registry *component.Registry, logger telemetry.Logger) *Loader {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Loader{dir: dir, registry: registry, logger: logger, seen: make(map[string]bool)}
}

// Load registers every component definition file currently in the
// directory. Files are processed in lexical order so registration errors
// are reproducible across restarts.
func (l *Loader) Load(ctx context.Context) error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("seed: read component directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if err := l.loadFile(ctx, filepath.Join(l.dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) loadFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("seed: read %s: %w", path, err)
	}

	// model.ComponentDefinition only carries json struct tags, so the YAML
	// is decoded into a generic tree and remarshaled as JSON rather than
	// duplicating a parallel yaml-tagged struct.
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("seed: parse %s: %w", path, err)
	}

	encoded, err := json.Marshal(convertYAMLMaps(generic))
	if err != nil {
		return fmt.Errorf("seed: reencode %s: %w", path, err)
	}

	def, err := component.DecodeDefinition(encoded)
	if err != nil {
		return fmt.Errorf("seed: decode %s: %w", path, err)
	}

	if err := l.registry.Register(def); err != nil {
		return fmt.Errorf("seed: register %s: %w", path, err)
	}
	l.mu.Lock()
	l.seen[path] = true
	l.mu.Unlock()
	l.logger.Info(ctx, "component registered", "id", def.ID, "file", path)
	return nil
}

// Watch starts an fsnotify watch on the loader's directory and loads a
// definition file when it is created or written and has not been loaded
// before. A write to an already-loaded file is only logged; the registered
// definition is left unchanged. It runs until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("seed: create watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("seed: watch %s: %w", l.dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isYAML(event.Name) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				l.mu.Lock()
				alreadyLoaded := l.seen[event.Name]
				l.mu.Unlock()
				if alreadyLoaded {
					l.logger.Info(ctx, "component definition file changed; restart the daemon to apply edits", "file", event.Name)
					continue
				}
				if err := l.loadFile(ctx, event.Name); err != nil {
					l.logger.Error(ctx, "component load failed", "file", event.Name, "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error(ctx, "component watcher error", "error", err)
			}
		}
	}()
	return nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// convertYAMLMaps rewrites the map[string]interface{} values yaml.v3
// produces (actually map[string]any, but nested sequences may still carry
// non-string keys for flow mappings) into the map[string]any shape
// encoding/json requires.
func convertYAMLMaps(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = convertYAMLMaps(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[fmt.Sprintf("%v", k)] = convertYAMLMaps(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = convertYAMLMaps(vv)
		}
		return out
	default:
		return val
	}
}
