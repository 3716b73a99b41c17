package events

import (
	"github.com/aristath/sarraf/internal/domain"
	"github.com/rs/zerolog"
)

// Manager stamps and publishes events. A nil *Manager drops events, so
// services can run without an event pipeline.
type Manager struct {
	bus   *Bus
	clock domain.Clock
	ids   domain.IDGenerator
	log   zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, clock domain.Clock, ids domain.IDGenerator, log zerolog.Logger) *Manager {
	return &Manager{
		bus:   bus,
		clock: clock,
		ids:   ids,
		log:   log.With().Str("service", "events").Logger(),
	}
}

// Emit publishes data as an event from module
func (m *Manager) Emit(module string, data EventData) {
	if m == nil || data == nil {
		return
	}

	event := &Event{
		ID:        m.ids.NewEventID(),
		Type:      data.EventType(),
		Timestamp: m.clock.Now(),
		Module:    module,
		Data:      data,
	}

	m.log.Debug().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("module", module).
		Msg("Event emitted")

	m.bus.Publish(event)
}

// Bus returns the underlying bus
func (m *Manager) Bus() *Bus {
	return m.bus
}
