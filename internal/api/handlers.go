package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"voiceask/internal/auth"
	"voiceask/internal/config"
	"voiceask/internal/health"
	"voiceask/internal/orchestrator"
	"voiceask/internal/realtime"
	"voiceask/internal/types"
)

const (
	maxAskBody = 1 << 20

	// EventsTokenHeader carries the journal token minted for the asking user.
	EventsTokenHeader = "X-Events-Token"
)

type Asker interface {
	Ask(ctx context.Context, in orchestrator.AskInput) (orchestrator.Result, error)
}

type Journal interface {
	ListEvents(userID string) []types.Event
}

type ReadinessFunc func(ctx context.Context) health.HealthStatus

type Handlers struct {
	cfg      config.Config
	asker    Asker
	realtime realtime.Client
	journal  Journal
	ready    ReadinessFunc
}

func NewHandlers(cfg config.Config, a Asker, rt realtime.Client, j Journal, ready ReadinessFunc) *Handlers {
	return &Handlers{cfg: cfg, asker: a, realtime: rt, journal: j, ready: ready}
}

func (h *Handlers) HandleAsk(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)

	var req types.AskRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBody))
	if err := dec.Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, types.ErrorResponse{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: "text is required"})
		return
	}

	res, err := h.asker.Ask(r.Context(), orchestrator.AskInput{Text: req.Text, UserID: req.UserID})
	if err != nil {
		kind := orchestrator.Classify(err)
		if kind == orchestrator.KindInvalidRequest {
			writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: "text is required"})
			return
		}
		log.ErrorContext(r.Context(), "ask failed", "kind", kind, "error", err)
		writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{
			Error:   "failed to get an answer",
			Details: err.Error(),
		})
		return
	}

	if tok := h.eventsToken(req.UserID); tok != "" {
		w.Header().Set(EventsTokenHeader, tok)
	}
	out := types.AskResponse{Text: res.Text}
	if res.Audio != nil {
		uri := res.Audio.DataURI()
		out.Audio = &uri
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) HandleToken(w http.ResponseWriter, r *http.Request) {
	sess, err := h.realtime.CreateSession(r.Context())
	if err != nil {
		requestLogger(r).ErrorContext(r.Context(), "realtime session failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{
			Error:   "failed to create realtime session",
			Details: err.Error(),
		})
		return
	}
	if h.cfg.Realtime.ResponseMode == "raw" && len(sess.Raw) > 0 {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(sess.Raw)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, types.TokenResponse{
		Token:     sess.Token,
		ExpiresIn: sess.ExpiresIn(time.Now()),
	})
}

func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	st := h.ready(ctx)
	code := http.StatusOK
	if !st.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request, userID string) {
	switch {
	case h.cfg.Server.EventsSecret != "":
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeJSON(w, http.StatusUnauthorized, types.ErrorResponse{Error: "missing bearer token"})
			return
		}
		if _, err := auth.ValidateUserToken(h.cfg.Server.EventsSecret, token, userID, time.Now(), 30*time.Second); err != nil {
			writeJSON(w, http.StatusUnauthorized, types.ErrorResponse{Error: "invalid token"})
			return
		}
	case !h.cfg.IsDevelopment():
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, types.EventsResponse{
		UserID: userID,
		Events: h.journal.ListEvents(userID),
	})
}

func (h *Handlers) eventsToken(userID string) string {
	if h.cfg.Server.EventsSecret == "" || userID == "" {
		return ""
	}
	tok, err := auth.GenerateUserToken(h.cfg.Server.EventsSecret, userID, time.Now().Add(h.cfg.Server.EventsTokenTTL))
	if err != nil {
		slog.Warn("events token", "error", err)
		return ""
	}
	return tok
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
