package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SnapshotProvider returns the current state of a round for newly connected clients.
type SnapshotProvider interface {
	RoundSnapshot(ctx context.Context, roundID uuid.UUID) (any, error)
}

// SnapshotFunc adapts a function to SnapshotProvider.
type SnapshotFunc func(ctx context.Context, roundID uuid.UUID) (any, error)

func (f SnapshotFunc) RoundSnapshot(ctx context.Context, roundID uuid.UUID) (any, error) {
	return f(ctx, roundID)
}

// IdentifyFunc resolves the caller for logging; it returns "" for anonymous clients.
type IdentifyFunc func(r *http.Request) string

// WebSocketHandler handles WebSocket upgrade requests for round feeds
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	snapshots         SnapshotProvider
	identify          IdentifyFunc
}

// NewWebSocketHandler creates a new WebSocket handler. snapshots and identify may be nil.
func NewWebSocketHandler(cm *ConnectionManager, snapshots SnapshotProvider, identify IdentifyFunc) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		snapshots:         snapshots,
		identify:          identify,
	}
}

// HandleRoundConnection upgrades GET /ws/rounds/{id}.
func (h *WebSocketHandler) HandleRoundConnection(w http.ResponseWriter, r *http.Request) {
	roundID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid round id format", http.StatusBadRequest)
		return
	}

	userID := ""
	if h.identify != nil {
		userID = h.identify(r)
	}
	if userID == "" {
		userID = "anonymous"
	}

	var initial *RoundEvent
	if h.snapshots != nil {
		snapshot, err := h.snapshots.RoundSnapshot(r.Context(), roundID)
		if err != nil {
			log.Warn().Err(err).Str("round_id", roundID.String()).Msg("round snapshot unavailable")
			http.Error(w, "round not found", http.StatusNotFound)
			return
		}
		data, err := json.Marshal(snapshot)
		if err != nil {
			http.Error(w, "failed to encode round snapshot", http.StatusInternalServerError)
			return
		}
		initial = &RoundEvent{
			ID:        uuid.New().String(),
			RoundID:   roundID.String(),
			Type:      EventTypeRoundSnapshot,
			Timestamp: time.Now().UTC(),
			Data:      data,
		}
	}

	// Upgrade writes its own error response on failure.
	if err := h.connectionManager.UpgradeConnection(w, r, userID, roundID, initial); err != nil {
		log.Error().
			Err(err).
			Str("round_id", roundID.String()).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/rounds/{id}", h.HandleRoundConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
