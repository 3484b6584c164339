package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/disgoorg/disgo/discord"
	"github.com/robalyx/neurobot/internal/feature"
	"go.uber.org/zap"
)

// ErrInvalidFeature is returned when a feature implements no handler or provider.
var ErrInvalidFeature = errors.New("feature implements no handlers")

// Registry holds the registered features and the routing tables built from them.
type Registry struct {
	mu         sync.RWMutex
	features   []feature.Feature
	disabled   map[string]struct{}
	commands   map[string]feature.Feature
	components map[string]feature.Feature
	logger     *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		disabled:   make(map[string]struct{}),
		commands:   make(map[string]feature.Feature),
		components: make(map[string]feature.Feature),
		logger:     logger.Named("registry"),
	}
}

// Register adds features in order. Command names and component IDs are
// indexed to their feature; a later feature claiming the same key wins.
func (r *Registry) Register(features ...feature.Feature) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range features {
		if f == nil || !feature.Handles(f) {
			name := "<nil>"
			if f != nil {
				name = f.Name()
			}
			return fmt.Errorf("%w: %s", ErrInvalidFeature, name)
		}

		r.features = append(r.features, f)

		if provider, ok := f.(feature.CommandProvider); ok {
			for _, cmd := range provider.Commands() {
				r.index(r.commands, "command", cmd.CommandName(), f)
			}
		}

		if provider, ok := f.(feature.ComponentProvider); ok {
			for _, id := range provider.ComponentIDs() {
				r.index(r.components, "component", id, f)
			}
		}

		r.logger.Debug("Registered feature", zap.String("feature", f.Name()))
	}

	return nil
}

func (r *Registry) index(table map[string]feature.Feature, kind, key string, f feature.Feature) {
	if previous, ok := table[key]; ok && previous != f {
		r.logger.Warn("Routing key claimed by multiple features",
			zap.String("kind", kind),
			zap.String("key", key),
			zap.String("previous", previous.Name()),
			zap.String("feature", f.Name()))
	}
	table[key] = f
}

// Init runs every Initializer in registration order. A failing feature is
// disabled and the rest continue.
func (r *Registry) Init(ctx context.Context) {
	for _, f := range r.Features() {
		initializer, ok := f.(feature.Initializer)
		if !ok {
			continue
		}

		if err := initializer.Init(ctx); err != nil {
			r.logger.Error("Failed to initialize feature, disabling it",
				zap.String("feature", f.Name()),
				zap.Error(err))
			r.disable(f)
			continue
		}

		r.logger.Info("Initialized feature", zap.String("feature", f.Name()))
	}
}

// disable removes f from broadcasts and routing.
func (r *Registry) disable(f feature.Feature) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.disabled[f.Name()] = struct{}{}
	for key, owner := range r.commands {
		if owner == f {
			delete(r.commands, key)
		}
	}
	for key, owner := range r.components {
		if owner == f {
			delete(r.components, key)
		}
	}
}

// Features returns the active features in registration order.
func (r *Registry) Features() []feature.Feature {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]feature.Feature, 0, len(r.features))
	for _, f := range r.features {
		if _, off := r.disabled[f.Name()]; !off {
			active = append(active, f)
		}
	}
	return active
}

// Command returns the feature owning a command name.
func (r *Registry) Command(name string) (feature.Feature, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.commands[name]
	return f, ok
}

// Component returns the feature owning a custom ID, matching the exact ID
// first and then the prefix before the first ':'.
func (r *Registry) Component(customID string) (feature.Feature, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.components[customID]; ok {
		return f, true
	}
	if prefix, _, found := strings.Cut(customID, ":"); found {
		f, ok := r.components[prefix]
		return f, ok
	}
	return nil, false
}

// Commands returns every declared command definition, including those of
// disabled features, for deployment.
func (r *Registry) Commands() []discord.ApplicationCommandCreate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var commands []discord.ApplicationCommandCreate
	for _, f := range r.features {
		if provider, ok := f.(feature.CommandProvider); ok {
			commands = append(commands, provider.Commands()...)
		}
	}
	return commands
}
