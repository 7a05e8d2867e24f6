package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled(t *testing.T) {
	assert.False(t, Enabled("audit"))

	t.Setenv("FLAG_AUDIT", "Yes")
	assert.True(t, Enabled(Audit))
}

func TestEnabledOr(t *testing.T) {
	assert.True(t, EnabledOr(Metrics, true))

	t.Setenv("FLAG_METRICS", "off")
	assert.False(t, EnabledOr(Metrics, true))

	t.Setenv("FLAG_METRICS", "maybe")
	assert.True(t, EnabledOr(Metrics, true))
	assert.False(t, EnabledOr(Metrics, false))
}
