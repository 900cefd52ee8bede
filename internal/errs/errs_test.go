package errs

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	notFound := New(KindNotFound, "ENTRY_NOT_FOUND", "ky entry not found")
	wrapped := fmt.Errorf("transition: %w", notFound)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, notFound))
	assert.Equal(t, KindPersistence, KindOf(errors.New("disk full")))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(KindPersistence, "STORE_ERROR", nil))
}

func TestAsClassifiesBareErrors(t *testing.T) {
	e := As(errors.New("boom"))
	assert.Equal(t, KindPersistence, e.Kind)
	assert.Equal(t, "INTERNAL_ERROR", e.Code)
}

func TestUpstreamCarriesResponse(t *testing.T) {
	e := Upstream("GATEWAY_ERROR", 429, `{"message":"rate"}`, nil)
	assert.Equal(t, KindUpstream, e.Kind)
	assert.Equal(t, 429, e.UpstreamStatus)
	assert.Equal(t, `{"message":"rate"}`, e.UpstreamBody)
	assert.Contains(t, e.Error(), "429")
}

func TestValidationMessage(t *testing.T) {
	single := Validation([]FieldError{{Code: "REQUIRED", Path: "action", Message: "action is required"}})
	assert.Equal(t, "action is required", single.Message)

	multi := Validation([]FieldError{{Path: "a"}, {Path: "b"}})
	assert.Equal(t, "request validation failed", multi.Message)
}

func TestLoggable(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(KindInvariant, "APPROVED_ENTRY_IMMUTABLE", "approved"))
	v := Loggable(err).LogValue()
	require.Equal(t, slog.KindGroup, v.Kind())

	got := map[string]slog.Value{}
	for _, a := range v.Group() {
		got[a.Key] = a.Value
	}
	assert.Equal(t, "invariant_violation", got["kind"].String())
	assert.Equal(t, "APPROVED_ENTRY_IMMUTABLE", got["code"].String())
}
