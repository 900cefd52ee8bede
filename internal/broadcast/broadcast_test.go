package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/kysafety/internal/errs"
)

const testEndpoint = "https://line.test/v2/bot/message/broadcast"

func newTestDispatcher(t *testing.T, token string) (*Dispatcher, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	d := NewDispatcher(Config{AccessToken: token, Endpoint: testEndpoint}, &http.Client{Transport: transport}, nil)
	return d, transport
}

func TestComposeOrder(t *testing.T) {
	got := Compose(Message{Title: "足場点検", URL: "https://x/1", Note: "雨天注意"})
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "【KY】足場点検", lines[0])
	assert.Equal(t, ReminderLine, lines[1])
	assert.Equal(t, "備考: 雨天注意", lines[2])
	assert.Equal(t, "詳細: https://x/1", lines[3])
}

func TestComposeTitleOnly(t *testing.T) {
	got := Compose(Message{Title: "足場点検"})
	assert.Equal(t, "【KY】足場点検\n"+ReminderLine, got)
	assert.NotContains(t, got, "備考")
	assert.NotContains(t, got, "詳細")
}

func TestComposeBlankTitle(t *testing.T) {
	assert.Empty(t, Compose(Message{Title: "  ", Note: "n"}))
}

func TestBroadcastSendsText(t *testing.T) {
	d, transport := newTestDispatcher(t, "line-token")

	var sent broadcastRequest
	transport.RegisterResponder(http.MethodPost, testEndpoint, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer line-token", req.Header.Get("Authorization"))
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(req.Body)
		require.NoError(t, json.Unmarshal(raw, &sent))
		return httpmock.NewStringResponse(http.StatusOK, `{}`), nil
	})

	text := Compose(Message{Title: "足場点検", Note: "雨天注意"})
	require.NoError(t, d.Broadcast(context.Background(), text))
	assert.Equal(t, 1, transport.GetTotalCallCount())
	require.Len(t, sent.Messages, 1)
	assert.Equal(t, "text", sent.Messages[0].Type)
	assert.Equal(t, text, sent.Messages[0].Text)
}

func TestBroadcastEmptyTextNeverSent(t *testing.T) {
	d, transport := newTestDispatcher(t, "line-token")
	transport.RegisterNoResponder(httpmock.NewStringResponder(http.StatusOK, `{}`))

	for _, text := range []string{"", "   ", "\n\t"} {
		err := d.Broadcast(context.Background(), text)
		assert.ErrorIs(t, err, ErrEmptyText)
		assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	}
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestBroadcastTooLong(t *testing.T) {
	d, transport := newTestDispatcher(t, "line-token")
	err := d.Broadcast(context.Background(), strings.Repeat("危", maxTextLength+1))
	assert.ErrorIs(t, err, ErrTextTooLong)
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestBroadcastGatewayErrorVerbatim(t *testing.T) {
	d, transport := newTestDispatcher(t, "line-token")
	transport.RegisterResponder(http.MethodPost, testEndpoint,
		httpmock.NewStringResponder(http.StatusTooManyRequests, `{"message":"You have reached your monthly limit."}`))

	err := d.Broadcast(context.Background(), "【KY】test")
	require.Error(t, err)
	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.KindUpstream, e.Kind)
	assert.Equal(t, "GATEWAY_ERROR", e.Code)
	assert.Equal(t, http.StatusTooManyRequests, e.UpstreamStatus)
	assert.Equal(t, `{"message":"You have reached your monthly limit."}`, e.UpstreamBody)
	assert.Equal(t, 1, transport.GetTotalCallCount(), "no retry")
}

func TestBroadcastTransportError(t *testing.T) {
	d, transport := newTestDispatcher(t, "line-token")
	transport.RegisterResponder(http.MethodPost, testEndpoint, httpmock.NewErrorResponder(errors.New("connection refused")))

	err := d.Broadcast(context.Background(), "hello")
	assert.Equal(t, errs.KindUpstream, errs.KindOf(err))
}

func TestBroadcastRequiresToken(t *testing.T) {
	d, transport := newTestDispatcher(t, "")
	err := d.Broadcast(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrGatewayNotConfigured)
	assert.Equal(t, errs.KindConfiguration, errs.KindOf(err))
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestConfigAuthorize(t *testing.T) {
	open := Config{}
	assert.True(t, open.AuthDisabled())
	assert.True(t, open.Authorize(""))

	guarded := Config{SharedSecret: "s3cret"}
	assert.False(t, guarded.AuthDisabled())
	assert.True(t, guarded.Authorize("s3cret"))
	assert.False(t, guarded.Authorize(""))
	assert.False(t, guarded.Authorize("s3cret "))
	assert.False(t, guarded.Authorize("wrong"))
}
