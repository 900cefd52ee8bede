package pipeline

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/yourorg/kysafety/internal/auth"
	"github.com/yourorg/kysafety/internal/broadcast"
	"github.com/yourorg/kysafety/internal/errs"
	"github.com/yourorg/kysafety/internal/respond"
)

const maxRequestBody = 64 * 1024

// Service adapts the coordinator to HTTP.
type Service struct {
	coord        *Coordinator
	broadcastCfg broadcast.Config
	logger       *slog.Logger
}

func NewService(coord *Coordinator, broadcastCfg broadcast.Config, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{coord: coord, broadcastCfg: broadcastCfg, logger: logger}
}

// Approve matches POST /api/ky/approval
func (s Service) Approve(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	var req ApprovalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	out, err := s.coord.Transition(r.Context(), actor, req)
	if err != nil {
		s.fail(w, r, "approval failed", err)
		return
	}
	fields := map[string]any{"isApproved": out.IsApproved, "record": out.Record}
	if out.Broadcast != nil {
		fields["broadcast"] = out.Broadcast
	}
	respond.OK(w, fields)
}

// DeleteEntry matches DELETE /api/ky/entries/{entryId}
func (s Service) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	entryID, err := entryIDParam(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := s.coord.DeleteEntry(r.Context(), actor, entryID); err != nil {
		s.fail(w, r, "delete failed", err)
		return
	}
	respond.OK(w, nil)
}

// ApprovalLog matches GET /api/ky/entries/{entryId}/approval-log
func (s Service) ApprovalLog(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	entryID, err := entryIDParam(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	out, err := s.coord.ApprovalLog(r.Context(), actor, entryID)
	if err != nil {
		s.fail(w, r, "approval log read failed", err)
		return
	}
	respond.OK(w, map[string]any{
		"entryId":    out.EntryID,
		"records":    out.Records,
		"chainValid": out.ChainValid,
		"chainError": out.ChainError,
	})
}

type riskRequest struct {
	ImageURL string `json:"imageUrl,omitempty"`
}

// AssessRisk matches POST /api/ky/risk
func (s Service) AssessRisk(w http.ResponseWriter, r *http.Request) {
	var req riskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	analysis, err := s.coord.AssessRisk(r.Context(), req.ImageURL)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, analysis)
}

// Broadcast matches POST /api/line/broadcast
func (s Service) Broadcast(w http.ResponseWriter, r *http.Request) {
	if !s.broadcastCfg.Authorize(r.Header.Get(broadcast.SecretHeader)) {
		respond.Error(w, r, ErrBroadcastForbidden)
		return
	}
	var req BroadcastRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := s.coord.Broadcast(r.Context(), req); err != nil {
		s.fail(w, r, "broadcast failed", err)
		return
	}
	respond.OK(w, nil)
}

var ErrBroadcastForbidden = errs.New(errs.KindAuthentication, "BROADCAST_SECRET_MISMATCH", "broadcast shared secret is missing or wrong")

func (s Service) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	log := respond.CorrelationLogger(s.logger, respond.CorrID(r.Context()))
	switch errs.KindOf(err) {
	case errs.KindPersistence, errs.KindUpstream, errs.KindConfiguration:
		log.Error(msg, slog.Any("error", errs.Loggable(err)))
	default:
		log.Info(msg, slog.Any("error", errs.Loggable(err)))
	}
	respond.Error(w, r, err)
}

// decodeJSON treats an empty body as {}.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errs.Validation([]errs.FieldError{{Code: "BAD_JSON", Path: "body", Message: err.Error()}})
	}
	return nil
}

func entryIDParam(r *http.Request) (string, error) {
	var entryID string
	err := runtime.BindStyledParameterWithOptions("simple", "entryId", chi.URLParam(r, "entryId"), &entryID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return "", errs.Validation([]errs.FieldError{{Code: "KY-APR-001", Path: "entryId", Message: err.Error()}})
	}
	return entryID, nil
}
