package webhook

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/yourorg/kysafety/internal/envconf"
	"github.com/yourorg/kysafety/internal/errs"
	"github.com/yourorg/kysafety/internal/metrics"
	"github.com/yourorg/kysafety/internal/respond"
	"github.com/yourorg/kysafety/internal/signature"
)

const maxBodySize = 1 << 20

// Results recorded on kysafety_webhook_requests_total.
const (
	ResultHealthCheck       = "health_check"
	ResultAccepted          = "accepted"
	ResultMissingSignature  = "missing_signature"
	ResultInvalidSignature  = "invalid_signature"
	ResultMalformed         = "malformed"
	ResultSecretUnavailable = "secret_unconfigured"
)

var (
	ErrMissingSignature  = errs.New(errs.KindValidation, "SIGNATURE_REQUIRED", "X-Line-Signature header is required")
	ErrInvalidSignature  = errs.New(errs.KindAuthentication, "INVALID_SIGNATURE", "webhook signature verification failed")
	ErrSecretUnavailable = errs.New(errs.KindConfiguration, "WEBHOOK_SECRET_NOT_CONFIGURED", "LINE channel secret is not configured")
	ErrBodyTooLarge      = errs.New(errs.KindValidation, "BODY_TOO_LARGE", "webhook body exceeds 1MiB")
)

// Config holds webhook settings.
type Config struct {
	// ChannelSecret keys the signature. Empty rejects every signed delivery.
	ChannelSecret string
}

func LoadConfig() Config {
	return Config{ChannelSecret: envconf.GetSecret("LINE_CHANNEL_SECRET")}
}

// Handler serves GET and POST /webhook/line.
type Handler struct {
	secret  []byte
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewHandler(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{secret: []byte(cfg.ChannelSecret), logger: logger, metrics: m}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := respond.CorrelationLogger(h.logger, respond.CorrID(r.Context()))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		h.fail(w, r, log, ResultMalformed, errs.Wrap(errs.KindValidation, "BODY_UNREADABLE", err))
		return
	}
	if len(body) > maxBodySize {
		h.fail(w, r, log, ResultMalformed, ErrBodyTooLarge)
		return
	}

	provided := r.Header.Get(signature.Header)
	if provided == "" {
		// Connectivity probes carry no signature and no body.
		if r.Method == http.MethodGet || len(bytes.TrimSpace(body)) == 0 {
			h.metrics.RecordWebhook(ResultHealthCheck)
			respond.OK(w, nil)
			return
		}
		h.fail(w, r, log, ResultMissingSignature, ErrMissingSignature)
		return
	}
	if len(h.secret) == 0 {
		h.fail(w, r, log, ResultSecretUnavailable, ErrSecretUnavailable)
		return
	}
	if !signature.Verify(h.secret, body, provided) {
		h.fail(w, r, log, ResultInvalidSignature, ErrInvalidSignature)
		return
	}

	events, skipped, err := Parse(body)
	if err != nil {
		h.fail(w, r, log, ResultMalformed, err)
		return
	}
	for _, ev := range events {
		log.Info("line webhook event",
			slog.String("type", ev.Type),
			slog.String("webhookEventId", ev.WebhookEventID),
			slog.String("sourceType", ev.SourceType),
			slog.String("sourceId", ev.SourceID),
			slog.Time("timestamp", ev.Timestamp),
			slog.Bool("redelivery", ev.Redelivery),
		)
	}
	if skipped > 0 {
		log.Warn("line webhook events skipped", slog.Int("count", skipped))
	}
	h.metrics.RecordWebhook(ResultAccepted)
	respond.OK(w, nil)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, log *slog.Logger, result string, err error) {
	h.metrics.RecordWebhook(result)
	log.Warn("line webhook rejected", slog.String("result", result), slog.Any("error", errs.Loggable(err)))
	respond.Error(w, r, err)
}
