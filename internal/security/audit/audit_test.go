package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogActionRecordsEntry(t *testing.T) {
	var buf bytes.Buffer
	al := NewLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	al.LogAction(ctx, "u-1", "create", "item", "7", StatusSuccess, "POST /api/items")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit", entry["component"])
	assert.Equal(t, "create", entry["action"])
	assert.Equal(t, "7", entry["resource_id"])
	assert.Equal(t, "success", entry["status"])
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestLogDenied(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(slog.New(slog.NewJSONHandler(&buf, nil))).LogDenied(context.Background(), "u-2", "item", "not owner")

	assert.Contains(t, buf.String(), `"action":"access_denied"`)
	assert.Contains(t, buf.String(), `"status":"denied"`)
}
