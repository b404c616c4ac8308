package exporters

import (
	"testing"

	"github.com/stretchr/testify/require"

	"smallbiznis-affiliate/pkg/config"
)

func TestNewDisabledWithoutAddr(t *testing.T) {
	exp, err := New(&config.Config{})
	require.NoError(t, err)
	require.Nil(t, exp)
}

func TestNewRejectsUnknownProtocol(t *testing.T) {
	cfg := &config.Config{}
	cfg.Otel.Addr = "collector:4317"
	cfg.Otel.Protocol = "udp"

	_, err := New(cfg)
	require.Error(t, err)
}
