package snapshot

import (
	"fmt"
	"time"

	"Go2NetPulse/internal/config"
	"Go2NetPulse/internal/logging"
	"Go2NetPulse/internal/model"
)

// WriterFactory builds a writer from its definition.
type WriterFactory func(def config.WriterDef, interval time.Duration) (model.Writer, error)

// registry holds the mapping of writer types to their factory functions.
var registry = make(map[string]WriterFactory)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// NewWriters creates a writer for every enabled definition.
func NewWriters(defs []config.WriterDef) ([]model.Writer, error) {
	log := logging.For("snapshot")
	var writers []model.Writer

	for _, def := range defs {
		if !def.Enabled {
			continue
		}
		factory, ok := registry[def.Type]
		if !ok {
			return nil, fmt.Errorf("unknown writer type: '%s'", def.Type)
		}

		w, err := factory(def, def.IntervalDuration())
		if err != nil {
			return nil, fmt.Errorf("error creating writer '%s': %w", def.Type, err)
		}
		log.WithField("writer", def.Type).WithField("interval", w.GetInterval()).Info("Created snapshot writer")
		writers = append(writers, w)
	}

	return writers, nil
}
