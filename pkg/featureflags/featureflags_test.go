package featureflags

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"smallbiznis-affiliate/pkg/config"
)

func TestUnconfiguredClientIsOff(t *testing.T) {
	ff := ProvideFeatureFlag(FeatureParams{Config: &config.Config{}})

	require.False(t, ff.IsEnabled(context.Background(), "42", AsyncDistribution))

	features, err := ff.Features(context.Background(), "42")
	require.NoError(t, err)
	require.Empty(t, features)
}
