package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntoFrom(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := Into(context.Background(), l)
	require.Same(t, l, From(ctx))

	From(ctx).Info("hello")
	require.Contains(t, buf.String(), "hello")
}

func TestFromFallsBackToDefault(t *testing.T) {
	require.Same(t, slog.Default(), From(context.Background()))
	require.Same(t, slog.Default(), From(context.WithValue(context.Background(), ctxKey{}, (*slog.Logger)(nil))))
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
