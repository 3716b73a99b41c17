package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/sarraf/internal/domain"
	"github.com/aristath/sarraf/internal/events"
	"github.com/aristath/sarraf/internal/utils"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsHeartbeat    = 30 * time.Second
	wsBufferSize   = 100
)

// EventsStreamHandler streams ledger events to websocket clients
type EventsStreamHandler struct {
	bus            *events.Bus
	log            zerolog.Logger
	originPatterns []string
}

// NewEventsStreamHandler creates a new events stream handler.
// allowedOrigins uses the CORS origin list; "*" accepts any origin.
func NewEventsStreamHandler(bus *events.Bus, allowedOrigins []string, log zerolog.Logger) *EventsStreamHandler {
	patterns := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimPrefix(origin, "https://")
		origin = strings.TrimPrefix(origin, "http://")
		patterns = append(patterns, origin)
	}

	return &EventsStreamHandler{
		bus:            bus,
		log:            log.With().Str("component", "events_stream").Logger(),
		originPatterns: patterns,
	}
}

// ServeHTTP handles GET /api/events/ws[?types=TRADE_CREATED,RECEIPT_CREATED]
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	types, err := parseEventTypes(r.URL.Query().Get("types"))
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// Clients only listen; CloseRead handles their control frames
	ctx := conn.CloseRead(r.Context())

	eventChan := make(chan *events.Event, wsBufferSize)
	unsubscribe := h.bus.Subscribe(func(event *events.Event) {
		select {
		case eventChan <- event:
		default:
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	}, types...)
	defer unsubscribe()

	h.log.Info().Int("types", len(types)).Msg("Client connected to event stream")

	if err := h.write(ctx, conn, map[string]string{
		"type":    "connected",
		"message": "Connected to ledger event stream",
	}); err != nil {
		return
	}

	heartbeat := time.NewTicker(wsHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Msg("Client disconnected from event stream")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case event := <-eventChan:
			if err := h.write(ctx, conn, event); err != nil {
				h.log.Debug().Err(err).Msg("Failed to write event, closing stream")
				return
			}

		case <-heartbeat.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("Heartbeat failed, closing stream")
				return
			}
		}
	}
}

func (h *EventsStreamHandler) write(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode event")
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

// parseEventTypes parses a comma-separated type filter. Empty means every type.
func parseEventTypes(raw string) ([]events.EventType, error) {
	known := make(map[events.EventType]bool, len(events.AllTypes))
	for _, t := range events.AllTypes {
		known[t] = true
	}

	var types []events.EventType
	for _, part := range utils.ParseCSV(raw) {
		t := events.EventType(strings.ToUpper(part))
		if !known[t] {
			return nil, domain.Invalid("unknown event type %q", part)
		}
		types = append(types, t)
	}
	return types, nil
}
