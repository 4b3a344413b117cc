// Package registry holds activity configurations: the requirement
// descriptors, validator references and parameters of every activity a
// workflow can instantiate.
package registry

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rendis/sequencer/pkg/schema"
)

// Registry is a thread-safe store of activity configurations. Entries are
// immutable once registered.
type Registry struct {
	mu    sync.RWMutex
	infos map[string]schema.ActivityInfo
	order []string

	validator *DocumentValidator
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithDocumentValidator enables structural and semantic checks on load.
func WithDocumentValidator(v *DocumentValidator) Option {
	return func(r *Registry) { r.validator = v }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

func New(opts ...Option) *Registry {
	r := &Registry{
		infos:  make(map[string]schema.ActivityInfo),
		logger: slog.Default().With("component", "registry"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds one activity configuration.
func (r *Registry) Register(info schema.ActivityInfo) error {
	return r.RegisterDocument(&schema.ActivityDocument{Activities: []schema.ActivityInfo{info}})
}

// RegisterDocument adds every activity of doc, or none of them when any
// check fails.
func (r *Registry) RegisterDocument(doc *schema.ActivityDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.validator != nil {
		result := r.validator.Validate(doc, r.hasLocked)
		for _, w := range result.Warnings {
			r.logger.Warn("activity definition warning", "path", w.Path, "message", w.Message)
		}
		if err := result.ToError(); err != nil {
			return err
		}
	} else {
		for _, info := range doc.Activities {
			if info.ID == "" {
				return schema.NewError(schema.ErrCodeValidation, "activity id is empty")
			}
			if r.hasLocked(info.ID) {
				return schema.NewErrorf(schema.ErrCodeConflict, "activity %q already registered", info.ID)
			}
		}
	}

	for _, info := range doc.Activities {
		r.infos[info.ID] = cloneInfo(info)
		r.order = append(r.order, info.ID)
	}
	return nil
}

// GetInfo returns the configuration registered under id.
func (r *Registry) GetInfo(id string) (schema.ActivityInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.infos[id]
	if !ok {
		return schema.ActivityInfo{}, schema.NewErrorf(schema.ErrCodeNotFound, "activity %q not registered", id)
	}
	return cloneInfo(info), nil
}

func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasLocked(id)
}

func (r *Registry) hasLocked(id string) bool {
	_, ok := r.infos[id]
	return ok
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// LoadYAML reads one activity document. JSON documents are accepted too.
// It returns the number of activities registered.
func (r *Registry) LoadYAML(rd io.Reader) (int, error) {
	raw, err := io.ReadAll(rd)
	if err != nil {
		return 0, fmt.Errorf("read activity document: %w", err)
	}

	if r.validator != nil {
		var untyped any
		if err := yaml.Unmarshal(raw, &untyped); err != nil {
			return 0, schema.NewError(schema.ErrCodeValidation, "malformed activity document").WithCause(err)
		}
		if err := r.validator.ValidateRaw(untyped).ToError(); err != nil {
			return 0, err
		}
	}

	var doc schema.ActivityDocument
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return 0, schema.NewError(schema.ErrCodeValidation, "malformed activity document").WithCause(err)
	}

	if err := r.RegisterDocument(&doc); err != nil {
		return 0, err
	}
	return len(doc.Activities), nil
}

// LoadFile loads one document from path.
func (r *Registry) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	n, err := r.LoadYAML(f)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", path, err)
	}
	r.logger.Info("activities loaded", "path", path, "count", n)
	return n, nil
}

// LoadDir loads every .yaml, .yml and .json file of dir, in name order.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read registry dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	total := 0
	for _, name := range names {
		n, err := r.LoadFile(filepath.Join(dir, name))
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// cloneInfo copies the slices so callers cannot mutate registered entries.
func cloneInfo(info schema.ActivityInfo) schema.ActivityInfo {
	info.Requirements = slices.Clone(info.Requirements)
	info.Validators = slices.Clone(info.Validators)
	info.Parameters = slices.Clone(info.Parameters)
	return info
}
