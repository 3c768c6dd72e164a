package rounds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/taprounds/go/internal/auth"
	"github.com/mcdev12/taprounds/go/internal/models"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 16

// RoundsApp defines what the service layer needs from the rounds application
type RoundsApp interface {
	CreateRound(ctx context.Context, req CreateRoundRequest) (*models.Round, error)
	GetRoundView(ctx context.Context, roundID uuid.UUID, now time.Time) (*RoundView, error)
	ListRounds(ctx context.Context, phase *models.RoundStatus) ([]RoundView, error)
	GetRoundDetail(ctx context.Context, roundID uuid.UUID, userID *uuid.UUID, leaderboardLimit int) (*RoundDetail, error)
	SubmitTap(ctx context.Context, req TapRequest) (*TapResult, error)
	Clock() clockwork.Clock
}

// Service exposes rounds over HTTP+JSON
type Service struct {
	app RoundsApp
}

// NewService creates a new rounds HTTP service
func NewService(app RoundsApp) *Service {
	return &Service{
		app: app,
	}
}

// RegisterRoutes registers the rounds API on mux. Identity is read from the request
// context, so the mux must sit behind auth.Authenticator.Middleware.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rounds", s.ListRounds)
	mux.HandleFunc("POST /api/rounds", s.CreateRound)
	mux.HandleFunc("GET /api/rounds/{id}", s.GetRound)
	mux.HandleFunc("POST /api/rounds/{id}/tap", s.Tap)
}

// ListRounds handles GET /api/rounds?status=. Unknown statuses are ignored.
func (s *Service) ListRounds(w http.ResponseWriter, r *http.Request) {
	var filter *models.RoundStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.RoundStatus(strings.ToUpper(raw))
		if status.Valid() {
			filter = &status
		}
	}

	views, err := s.app.ListRounds(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]RoundListDTO, 0, len(views))
	for _, v := range views {
		out = append(out, roundViewToListDTO(v))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetRound handles GET /api/rounds/{id}?limit=
func (s *Service) GetRound(w http.ResponseWriter, r *http.Request) {
	roundID, err := parseRoundID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	user, _ := auth.UserFromContext(r.Context())
	var userID *uuid.UUID
	if user != nil {
		userID = &user.ID
	}

	detail, err := s.app.GetRoundDetail(r.Context(), roundID, userID, ClampLeaderboardLimit(limit))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roundDetailToDTO(*detail, user))
}

// CreateRound handles POST /api/rounds. Admins only.
func (s *Service) CreateRound(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, ErrUnauthorized)
		return
	}
	if !user.IsAdmin() {
		writeError(w, r, fmt.Errorf("%w: only admins can create rounds", ErrForbidden))
		return
	}

	var body CreateRoundBody
	if err := decodeBody(r, &body, true); err != nil {
		writeError(w, r, err)
		return
	}

	round, err := s.app.CreateRound(r.Context(), CreateRoundRequest{
		CreatedBy:       user.ID,
		CooldownSeconds: body.StartDelaySeconds,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, roundViewToListDTO(NewRoundView(*round, s.app.Clock().Now())))
}

// Tap handles POST /api/rounds/{id}/tap with an absolute tap count.
func (s *Service) Tap(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, ErrUnauthorized)
		return
	}

	roundID, err := parseRoundID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body TapBody
	if err := decodeBody(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	if body.TapCount == nil || body.Score == nil {
		writeError(w, r, fmt.Errorf("%w: tapCount and score are required", ErrValidation))
		return
	}
	if *body.Score < 0 {
		writeError(w, r, fmt.Errorf("%w: score cannot be negative", ErrValidation))
		return
	}

	result, err := s.app.SubmitTap(r.Context(), TapRequest{
		RoundID:  roundID,
		UserID:   user.ID,
		Username: user.Username,
		TapCount: *body.TapCount,
		Score:    body.Score,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tapResultToDTO(*result, user))
}

// RoundSnapshot returns the list view of a round; the gateway sends it to new subscribers.
func (s *Service) RoundSnapshot(ctx context.Context, roundID uuid.UUID) (any, error) {
	view, err := s.app.GetRoundView(ctx, roundID, s.app.Clock().Now())
	if err != nil {
		return nil, err
	}
	return roundViewToListDTO(*view), nil
}

// Helper methods

func parseRoundID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid round id", ErrValidation)
	}
	return id, nil
}

func decodeBody(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return fmt.Errorf("%w: invalid request body: %v", ErrValidation, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		message = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, ErrRoundNotFound):
		return http.StatusNotFound, "ROUND_NOT_FOUND"
	case errors.Is(err, ErrRoundNotActive):
		return http.StatusConflict, "ROUND_NOT_ACTIVE"
	case errors.Is(err, ErrMonotonicityViolation):
		return http.StatusConflict, "MONOTONICITY_VIOLATION"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "AUTHENTICATION_REQUIRED"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
