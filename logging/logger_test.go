package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	saved := RootLogger
	t.Cleanup(func() { RootLogger = saved })

	require.False(t, RootLogger.Debug().Enabled())

	require.NoError(t, SetLevel("debug"))
	require.True(t, RootLogger.Debug().Enabled())
	kernel := Component("kernel")
	require.True(t, kernel.Debug().Enabled())

	require.Error(t, SetLevel("chatty"))
	require.True(t, RootLogger.Debug().Enabled())

	require.NoError(t, SetLevel("warn"))
	require.False(t, RootLogger.Info().Enabled())
}
