package risk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/kysafety/internal/errs"
)

const completionsURL = "https://analyzer.test/v1/chat/completions"

func newTestAnalyzer(t *testing.T) (*OpenAIAnalyzer, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	a, err := NewOpenAIAnalyzer(Config{
		APIKey:  "sk-test",
		BaseURL: "https://analyzer.test/v1/",
		Model:   "gpt-4o-mini",
	}, &http.Client{Transport: transport})
	require.NoError(t, err)
	return a, transport
}

func completion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

func TestNewOpenAIAnalyzerRequiresKey(t *testing.T) {
	_, err := NewOpenAIAnalyzer(Config{}, nil)
	assert.ErrorIs(t, err, ErrAnalyzerNotConfigured)
}

func TestOpenAIAnalyzerSendsImage(t *testing.T) {
	a, transport := newTestAnalyzer(t)

	var sent map[string]any
	transport.RegisterResponder(http.MethodPost, completionsURL, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
		raw, _ := io.ReadAll(req.Body)
		require.NoError(t, json.Unmarshal(raw, &sent))
		return httpmock.NewJsonResponse(http.StatusOK, json.RawMessage(completion(`{"openEdges":true,"heavyEquipmentNearPeople":true}`)))
	})

	flags, err := a.Analyze(context.Background(), "https://example.jp/site.jpg")
	require.NoError(t, err)
	assert.Equal(t, Flags{OpenEdges: true, HeavyEquipmentNearPeople: true}, flags)
	assert.Equal(t, "gpt-4o-mini", sent["model"])
	assert.Contains(t, mustJSON(t, sent["messages"]), "https://example.jp/site.jpg")
}

func TestOpenAIAnalyzerUpstreamError(t *testing.T) {
	a, transport := newTestAnalyzer(t)
	transport.RegisterResponder(http.MethodPost, completionsURL,
		httpmock.NewJsonResponderOrPanic(http.StatusServiceUnavailable, json.RawMessage(`{"error":{"message":"overloaded","type":"server_error"}}`)))

	_, err := a.Analyze(context.Background(), "https://example.jp/site.jpg")
	require.ErrorIs(t, err, ErrAnalysisUnavailable)
	e := errs.As(err)
	assert.Equal(t, errs.KindUpstream, e.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, e.UpstreamStatus)
	assert.Equal(t, 1, transport.GetTotalCallCount(), "no internal retry")
}

func TestOpenAIAnalyzerProseReply(t *testing.T) {
	a, transport := newTestAnalyzer(t)
	transport.RegisterResponder(http.MethodPost, completionsURL,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, json.RawMessage(completion("写真からは判断できません。"))))

	_, err := a.Analyze(context.Background(), "https://example.jp/site.jpg")
	require.ErrorIs(t, err, ErrAnalysisUnavailable)
	// the reply was decoded and rejected by ParseFlags, not by the SDK
	assert.Equal(t, "ANALYSIS_UNAVAILABLE", errs.As(err).Code)
	assert.Equal(t, []string{ErrAnalysisUnavailable.Error()}, errs.ErrorChainStrings(err))
}

func TestOpenAIAnalyzerProseAroundObject(t *testing.T) {
	a, transport := newTestAnalyzer(t)
	transport.RegisterResponder(http.MethodPost, completionsURL,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, json.RawMessage(completion("判定結果: {\"thirdPartyVisible\": true} (注: {}は補足)"))))

	flags, err := a.Analyze(context.Background(), "https://example.jp/site.jpg")
	require.NoError(t, err)
	assert.Equal(t, Flags{ThirdPartyVisible: true}, flags)
}

func TestOpenAIAnalyzerUnreadableResponse(t *testing.T) {
	a, transport := newTestAnalyzer(t)
	transport.RegisterResponder(http.MethodPost, completionsURL,
		httpmock.NewStringResponder(http.StatusOK, "<html>gateway</html>"))

	_, err := a.Analyze(context.Background(), "https://example.jp/site.jpg")
	require.ErrorIs(t, err, ErrAnalysisUnavailable)
	e := errs.As(err)
	assert.Equal(t, errs.KindUpstream, e.Kind)
	assert.Equal(t, "ANALYZER_BAD_RESPONSE", e.Code)
}

func TestOpenAIAnalyzerUnreachable(t *testing.T) {
	a, transport := newTestAnalyzer(t)
	transport.RegisterResponder(http.MethodPost, completionsURL,
		httpmock.NewErrorResponder(errors.New("connection refused")))

	_, err := a.Analyze(context.Background(), "https://example.jp/site.jpg")
	require.ErrorIs(t, err, ErrAnalysisUnavailable)
	assert.Equal(t, "ANALYZER_UNREACHABLE", errs.As(err).Code)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
