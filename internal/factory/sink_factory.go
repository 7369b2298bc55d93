package factory

import (
	"fmt"
	"sort"

	"Go2NetKDD/internal/config"
	"Go2NetKDD/internal/model"

	"go.uber.org/zap"
)

// SinkFactory builds a writer from its sink definition.
type SinkFactory func(def config.SinkDef) (model.Writer, error)

// registry holds the mapping of sink types to their factory functions.
var registry = make(map[string]SinkFactory)

// RegisterSink registers a new sink type with its factory function.
func RegisterSink(name string, factory SinkFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("sink type '%s' already registered", name))
	}
	registry[name] = factory
}

// Registered returns the known sink types.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds every enabled sink of the config. A sink that fails to
// construct is logged and skipped; unknown types are an error.
func Create(cfg *config.Config) ([]model.Writer, error) {
	var writers []model.Writer

	for _, def := range cfg.Sinks {
		if !def.Enabled {
			continue
		}
		factory, ok := registry[def.Type]
		if !ok {
			closeAll(writers)
			return nil, fmt.Errorf("unknown sink type: '%s'", def.Type)
		}

		zap.S().Infof("Creating sink '%s'", def.Type)
		w, err := factory(def)
		if err != nil {
			zap.S().Errorf("Sink '%s' disabled: %v", def.Type, err)
			continue
		}
		writers = append(writers, w)
	}

	return writers, nil
}

func closeAll(writers []model.Writer) {
	for _, w := range writers {
		if err := w.Close(); err != nil {
			zap.S().Warnf("Failed to close sink '%s': %v", w.Name(), err)
		}
	}
}
