package risk

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/yourorg/kysafety/internal/errs"
)

const analyzerPrompt = `あなたは建設現場の安全管理者です。写真を確認し、次の危険要因の有無を判定してください。
JSONオブジェクトのみで回答してください。キーと値は次の通りです（値は true または false）:
{"openEdges": 開口部・端部の養生不足,
 "heavyEquipmentNearPeople": 重機と作業員の近接,
 "thirdPartyVisible": 第三者（通行人など）の立ち入り,
 "safetyBarrierMissing": 安全柵・バリケードの不備,
 "heightDifferenceDetected": 段差・高低差}`

// OpenAIAnalyzer asks an OpenAI compatible vision model for hazard flags.
type OpenAIAnalyzer struct {
	client openai.Client
	model  string
}

// NewOpenAIAnalyzer builds an analyzer from cfg. It returns
// ErrAnalyzerNotConfigured when no credential is set. httpClient may be nil.
// The SDK's internal retries are disabled; retry policy belongs to the caller.
func NewOpenAIAnalyzer(cfg Config, httpClient *http.Client) (*OpenAIAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, ErrAnalyzerNotConfigured
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAIAnalyzer{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

// Analyze implements Analyzer.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, imageURL string) (Flags, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(analyzerPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart("この現場写真の危険要因を判定してください。"),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: imageURL}),
			}),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Flags{}, unavailable(errs.Upstream("ANALYZER_ERROR", apiErr.StatusCode, apiErr.Error(), err))
		}
		if unreachable(err) {
			return Flags{}, unavailable(errs.Upstream("ANALYZER_UNREACHABLE", 0, "", err))
		}
		return Flags{}, unavailable(errs.Upstream("ANALYZER_BAD_RESPONSE", 0, "", err))
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Flags{}, ErrAnalysisUnavailable
	}
	return ParseFlags(resp.Choices[0].Message.Content)
}

// unreachable reports a failure before any response arrived: transport errors
// and cancellation. Anything else is a response the SDK could not read.
func unreachable(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
