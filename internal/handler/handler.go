package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/examcoach/internal/i18n"
	"github.com/pavelanni/examcoach/internal/marker"
	"github.com/pavelanni/examcoach/internal/model"
	"github.com/pavelanni/examcoach/internal/paper"
)

const (
	maxBodyBytes        = 1 << 20
	defaultAttemptLimit = 50
)

// History records marked attempts. It is optional.
type History interface {
	RecordAttempt(a model.Attempt) (string, error)
	GetAttempt(id string) (*model.Attempt, error)
	ListAttempts(limit int) ([]model.Attempt, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	history History
	config  model.ServerConfig
}

// New creates a new Handler. A nil history disables attempt recording.
func New(history History, cfg model.ServerConfig) (*Handler, error) {
	if history == nil {
		cfg.History = false
	}
	return &Handler{history: history, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Post("/generate", h.handleGenerate)
	r.Post("/mark", h.handleMark)
	r.Post("/mark_bundle", h.handleMarkBundle)
	r.Get("/attempts", h.handleListAttempts)
	r.Get("/attempts/{attemptID}", h.handleGetAttempt)
}

type generateResponse struct {
	Questions []model.QuestionView `json:"questions"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req model.PaperRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidJSON", err)
		return
	}

	p := paper.Generate(req)
	slog.Debug("generated paper",
		"board", req.Board,
		"level", req.Level,
		"subject", req.Subject,
		"topics", req.Topics,
		"questions", len(p),
	)
	writeJSON(w, http.StatusOK, generateResponse{Questions: paper.Views(p)})
}

func (h *Handler) handleMark(w http.ResponseWriter, r *http.Request) {
	var req model.MarkRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidJSON", err)
		return
	}
	if req.Answers == nil {
		writeError(w, r, http.StatusBadRequest, "ErrAnswersRequired", nil)
		return
	}

	p := paper.Generate(req.PaperRequest)
	res, err := marker.Mark(p, req.Answers)
	if err != nil {
		slog.Error("marking failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", nil)
		return
	}
	appI18n.LocalizeResult(r.Context(), &res)

	if h.config.History {
		id, err := h.history.RecordAttempt(model.Attempt{
			Request: req.PaperRequest,
			Answers: req.Answers,
			Result:  res,
		})
		if err != nil {
			slog.Error("failed to record attempt", "error", err)
		} else {
			res.AttemptID = id
		}
	}

	slog.Info("marked paper", "attempt_id", res.AttemptID, "awarded", res.TotalAwarded, "max", res.TotalMax)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleMarkBundle(w http.ResponseWriter, r *http.Request) {
	var bundle model.MarkBundle
	if err := decodeJSON(w, r, &bundle, false); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidJSON", err)
		return
	}
	if bundle.Paper == nil {
		writeError(w, r, http.StatusBadRequest, "ErrPaperRequired", nil)
		return
	}
	if bundle.Answers == nil {
		writeError(w, r, http.StatusBadRequest, "ErrAnswersRequired", nil)
		return
	}
	paper.Normalize(bundle.Paper)
	if err := paper.Validate(bundle.Paper); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidPaper", err)
		return
	}

	res, err := marker.Mark(bundle.Paper, bundle.Answers)
	if err != nil {
		slog.Error("marking bundle failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", nil)
		return
	}
	appI18n.LocalizeResult(r.Context(), &res)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	if !h.config.History {
		writeError(w, r, http.StatusNotFound, "ErrHistoryDisabled", nil)
		return
	}

	limit := defaultAttemptLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "ErrInvalidLimit", nil)
			return
		}
		limit = n
	}

	attempts, err := h.history.ListAttempts(limit)
	if err != nil {
		slog.Error("failed to list attempts", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", nil)
		return
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *Handler) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	if !h.config.History {
		writeError(w, r, http.StatusNotFound, "ErrHistoryDisabled", nil)
		return
	}

	id := chi.URLParam(r, "attemptID")
	a, err := h.history.GetAttempt(id)
	if err != nil {
		slog.Error("failed to get attempt", "id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", nil)
		return
	}
	if a == nil {
		writeError(w, r, http.StatusNotFound, "ErrAttemptNotFound", nil)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// decodeJSON reads a single JSON value from the request body into v.
// Unknown fields are ignored. An empty body is accepted only when allowEmpty
// is set, leaving v at its zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string, detail error) {
	resp := errorResponse{Error: appI18n.T(r.Context(), msgID)}
	if detail != nil {
		resp.Detail = detail.Error()
	}
	writeJSON(w, status, resp)
}
