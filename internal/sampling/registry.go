// internal/sampling/registry.go
package sampling

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var ErrUnknownSource = errors.New("unknown sample source")

// SourceFactory creates a source from its configuration
type SourceFactory func(config Config, logger *zap.Logger) (Source, error)

// Registry maps source kinds to factories
type Registry struct {
	factories map[string]SourceFactory
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		factories: make(map[string]SourceFactory),
		logger:    logger,
	}
}

// DefaultRegistry returns a registry with the built-in synthetic and frames sources
func DefaultRegistry(logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(KindSynthetic, func(config Config, logger *zap.Logger) (Source, error) {
		return NewSynthetic(config.Channels, nil), nil
	})
	r.Register(KindFrames, func(config Config, logger *zap.Logger) (Source, error) {
		return NewFrameSource(config.SampleOp), nil
	})
	return r
}

// Register registers a source factory, replacing any previous one for kind
func (r *Registry) Register(kind string, factory SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[kind] = factory
	r.logger.Debug("Sample source registered", zap.String("kind", kind))
}

// Create builds the source named by config.Kind. An empty kind means synthetic.
func (r *Registry) Create(config Config) (Source, error) {
	kind := config.Kind
	if kind == "" {
		kind = KindSynthetic
	}

	r.mu.RLock()
	factory, exists := r.factories[kind]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, kind)
	}

	source, err := factory(config, r.logger)
	if err != nil {
		return nil, fmt.Errorf("create %s source: %w", kind, err)
	}

	r.logger.Info("Sample source created", zap.String("kind", kind))
	return source, nil
}

// Kinds returns the registered kinds, sorted
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// IsSupported reports whether kind is registered
func (r *Registry) IsSupported(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.factories[kind]
	return exists
}
