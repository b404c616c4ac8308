package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smallbiznis-affiliate/pkg/config"
)

func TestNewReplacesGlobals(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	log := New(ConfigParams{Cfg: &config.Config{AppEnv: "production", AppName: "affiliate"}})
	require.NotNil(t, log)
	require.Same(t, log, zap.L())
}

func TestTraceFieldsWithoutSpan(t *testing.T) {
	fields := TraceFields(context.Background())
	require.Len(t, fields, 2)
	require.Equal(t, "trace_id", fields[0].Key)
	require.Equal(t, "00000000000000000000000000000000", fields[0].String)
	require.Equal(t, "span_id", fields[1].Key)
}
