package envconf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetters(t *testing.T) {
	t.Setenv("KY_TEST_STR", "value")
	t.Setenv("KY_TEST_INT", "42")
	t.Setenv("KY_TEST_BAD_INT", "forty")
	t.Setenv("KY_TEST_DUR", "90s")
	t.Setenv("KY_TEST_BOOL", "true")
	t.Setenv("KY_TEST_SECRET", "  s3cret \n")

	assert.Equal(t, "value", Getenv("KY_TEST_STR", "def"))
	assert.Equal(t, "def", Getenv("KY_TEST_MISSING", "def"))
	assert.Equal(t, 42, GetInt("KY_TEST_INT", 1))
	assert.Equal(t, 1, GetInt("KY_TEST_BAD_INT", 1))
	assert.Equal(t, 90*time.Second, GetDuration("KY_TEST_DUR", time.Second))
	assert.True(t, GetBool("KY_TEST_BOOL", false))
	assert.False(t, GetBool("KY_TEST_MISSING", false))
	assert.Equal(t, "s3cret", GetSecret("KY_TEST_SECRET"))
	assert.Empty(t, GetSecret("KY_TEST_MISSING"))
}
