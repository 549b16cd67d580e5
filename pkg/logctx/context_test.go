package logctx_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"lunchmind/pkg/logctx"
)

func TestEnsureRequestID(t *testing.T) {
	t.Parallel()
	ctx, id := logctx.EnsureRequestID(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, logctx.RequestID(ctx))

	same, again := logctx.EnsureRequestID(ctx)
	assert.Equal(t, id, again)
	assert.Equal(t, ctx, same)
}

func TestLogger(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	logctx.Logger(logctx.WithRequestID(context.Background(), "req-7"), base).Info("tagged")
	logctx.Logger(context.Background(), base).Info("plain")

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, "req-7", entries[0].ContextMap()["request_id"])
	assert.NotContains(t, entries[1].ContextMap(), "request_id")
	assert.NotNil(t, logctx.Logger(context.Background(), nil))
}
