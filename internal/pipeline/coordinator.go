// Package pipeline orchestrates the KY workflow behind the HTTP surface:
// authenticated approval transitions, guarded deletes, photo risk analysis and
// broadcast dispatch.
package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/yourorg/kysafety/internal/approval"
	"github.com/yourorg/kysafety/internal/auth"
	"github.com/yourorg/kysafety/internal/broadcast"
	"github.com/yourorg/kysafety/internal/errs"
	"github.com/yourorg/kysafety/internal/metrics"
	"github.com/yourorg/kysafety/internal/respond"
	"github.com/yourorg/kysafety/internal/risk"
)

// Broadcaster sends one notification. *broadcast.Dispatcher implements it.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) error
}

var ErrActorMismatch = errs.Validation([]errs.FieldError{{Code: "KY-APR-005", Path: "actorId", Message: "actorId does not match the session"}})

// ApprovalRequest is the body of POST /api/ky/approval.
type ApprovalRequest struct {
	KyEntryID string          `json:"kyEntryId"`
	ProjectID string          `json:"projectId"`
	Action    approval.Action `json:"action"`
	ActorID   *string         `json:"actorId,omitempty"`
	Note      *string         `json:"note,omitempty"`
}

// BroadcastOutcome reports a broadcast attempted after a committed approve.
type BroadcastOutcome struct {
	Sent           bool   `json:"sent"`
	Code           string `json:"code,omitempty"`
	Error          string `json:"error,omitempty"`
	UpstreamStatus int    `json:"upstreamStatus,omitempty"`
}

// ApprovalOutcome is the committed transition plus any broadcast attempt.
type ApprovalOutcome struct {
	IsApproved bool                       `json:"isApproved"`
	Record     approval.ApprovalLogRecord `json:"record"`
	Broadcast  *BroadcastOutcome          `json:"broadcast,omitempty"`
}

// ApprovalLog is an entry's full log with its chain check.
type ApprovalLog struct {
	EntryID    string                       `json:"entryId"`
	Records    []approval.ApprovalLogRecord `json:"records"`
	ChainValid bool                         `json:"chainValid"`
	ChainError string                       `json:"chainError,omitempty"`
}

// BroadcastRequest is the body of POST /api/line/broadcast. Text wins over the
// structured fields when both are present.
type BroadcastRequest struct {
	Text  string `json:"text,omitempty"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
	Note  string `json:"note,omitempty"`
}

// Coordinator wires the store, analyzer and dispatcher together.
type Coordinator struct {
	cfg         Config
	store       approval.Store
	broadcaster Broadcaster
	analyzer    risk.Analyzer
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewCoordinator builds a coordinator. analyzer and broadcaster may be nil
// when unconfigured; the operations that need them then report a
// configuration error.
func NewCoordinator(cfg Config, store approval.Store, broadcaster Broadcaster, analyzer risk.Analyzer, m *metrics.Metrics, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{cfg: cfg, store: store, broadcaster: broadcaster, analyzer: analyzer, metrics: m, logger: logger}
}

// Transition applies an approve or unapprove on behalf of actor. The session
// actor is recorded; a body actorId, when given, must agree with it.
func (c *Coordinator) Transition(ctx context.Context, actor *auth.Actor, req ApprovalRequest) (ApprovalOutcome, error) {
	if actor == nil {
		return ApprovalOutcome{}, auth.ErrTokenRequired
	}
	if req.ActorID != nil && strings.TrimSpace(*req.ActorID) != "" && strings.TrimSpace(*req.ActorID) != actor.ID {
		return ApprovalOutcome{}, ErrActorMismatch
	}
	actorID := actor.ID

	res, err := c.store.Transition(ctx, approval.TransitionInput{
		EntryID:   strings.TrimSpace(req.KyEntryID),
		ProjectID: strings.TrimSpace(req.ProjectID),
		Action:    req.Action,
		ActorID:   &actorID,
		Note:      req.Note,
	})
	actionLabel := string(req.Action)
	if !req.Action.Valid() {
		actionLabel = "invalid"
	}
	if err != nil {
		c.metrics.RecordTransition(actionLabel, string(errs.KindOf(err)))
		return ApprovalOutcome{}, err
	}
	c.metrics.RecordTransition(actionLabel, metrics.OutcomeOK)

	log := respond.CorrelationLogger(c.logger, respond.CorrID(ctx))
	log.Info("ky entry transitioned",
		slog.String("entryId", res.Entry.ID),
		slog.String("projectId", res.Entry.ProjectID),
		slog.String("action", string(res.Record.Action)),
		slog.String("actorId", actorID),
		slog.Bool("isApproved", res.IsApproved()),
	)

	out := ApprovalOutcome{IsApproved: res.IsApproved(), Record: res.Record}
	if res.Record.Action == approval.ActionApprove && c.cfg.BroadcastOnApprove {
		out.Broadcast = c.announce(ctx, log, res.Entry, req.Note)
	}
	return out, nil
}

// announce broadcasts an approved entry. The transition is already committed,
// so a failure is reported, never rolled back.
func (c *Coordinator) announce(ctx context.Context, log *slog.Logger, entry approval.KyEntry, note *string) *BroadcastOutcome {
	msg := broadcast.Message{Title: entry.Title, URL: c.cfg.entryURL(entry.ID, entry.ProjectID)}
	if note != nil {
		msg.Note = *note
	}
	if err := c.dispatch(ctx, broadcast.Compose(msg)); err != nil {
		e := errs.As(err)
		log.Warn("approval broadcast failed", slog.String("entryId", entry.ID), slog.Any("error", errs.Loggable(err)))
		return &BroadcastOutcome{Sent: false, Code: e.Code, Error: e.Message, UpstreamStatus: e.UpstreamStatus}
	}
	return &BroadcastOutcome{Sent: true}
}

// DeleteEntry removes an unapproved entry.
func (c *Coordinator) DeleteEntry(ctx context.Context, actor *auth.Actor, entryID string) error {
	if actor == nil {
		return auth.ErrTokenRequired
	}
	if err := c.store.DeleteEntry(ctx, entryID); err != nil {
		return err
	}
	respond.CorrelationLogger(c.logger, respond.CorrID(ctx)).Info("ky entry deleted",
		slog.String("entryId", entryID), slog.String("actorId", actor.ID))
	return nil
}

// ApprovalLog returns the entry's records and whether their hash chain holds.
// Records of a deleted entry remain readable.
func (c *Coordinator) ApprovalLog(ctx context.Context, actor *auth.Actor, entryID string) (ApprovalLog, error) {
	if actor == nil {
		return ApprovalLog{}, auth.ErrTokenRequired
	}
	records, err := c.store.ListLog(ctx, entryID)
	if err != nil {
		return ApprovalLog{}, err
	}
	if len(records) == 0 {
		if _, err := c.store.GetEntry(ctx, entryID); err != nil {
			return ApprovalLog{}, err
		}
	}
	out := ApprovalLog{EntryID: entryID, Records: records, ChainValid: true}
	if err := approval.VerifyChain(records); err != nil {
		out.ChainValid = false
		out.ChainError = err.Error()
		respond.CorrelationLogger(c.logger, respond.CorrID(ctx)).Error("approval log chain broken",
			slog.String("entryId", entryID), slog.String("error", err.Error()))
	}
	return out, nil
}

// AssessRisk computes the image factor for imageURL.
func (c *Coordinator) AssessRisk(ctx context.Context, imageURL string) (risk.Analysis, error) {
	analysis, err := risk.Assess(ctx, c.analyzer, imageURL)
	if err != nil {
		c.metrics.RecordRisk(metrics.OutcomeError, 0)
		respond.CorrelationLogger(c.logger, respond.CorrID(ctx)).Warn("risk analysis failed", slog.Any("error", errs.Loggable(err)))
		return risk.Analysis{}, err
	}
	c.metrics.RecordRisk(metrics.OutcomeOK, analysis.ImageFactor)
	return analysis, nil
}

// Broadcast sends req as given text or as a composed message.
func (c *Coordinator) Broadcast(ctx context.Context, req BroadcastRequest) error {
	text := req.Text
	if strings.TrimSpace(text) == "" {
		text = broadcast.Compose(broadcast.Message{Title: req.Title, URL: req.URL, Note: req.Note})
	}
	return c.dispatch(ctx, text)
}

func (c *Coordinator) dispatch(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return broadcast.ErrEmptyText
	}
	if c.broadcaster == nil {
		return broadcast.ErrGatewayNotConfigured
	}
	err := c.broadcaster.Broadcast(ctx, text)
	switch {
	case err == nil:
		c.metrics.RecordBroadcast(metrics.OutcomeOK)
	case errs.KindOf(err) == errs.KindValidation:
		// never reached the gateway
	default:
		c.metrics.RecordBroadcast(metrics.OutcomeError)
	}
	return err
}
