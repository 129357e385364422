package observability_test

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlasdao/painel-sub005/internal/observability"
)

func TestLoggers(t *testing.T) {
	t.Run("cli logger", func(t *testing.T) {
		require.NoError(t, observability.InitCLILogger("painel-test", true))
		require.NotNil(t, observability.CLILogger)
		observability.CLILogger.Debug("verbose cli message", zap.String("component", "test"))
	})

	t.Run("server logger carries environment and namespace", func(t *testing.T) {
		require.NoError(t, observability.InitServerLogger(observability.ServerLogOptions{
			Service:     "painel-test",
			Level:       "debug",
			Environment: "test",
			Namespace:   "atlasdao_painel",
			Profile:     "structured",
		}))
		require.NotNil(t, observability.ServerLogger)
		observability.ServerLogger.Info("Expired stale pending transactions",
			zap.String("sweep", "primary"),
			zap.Int64("expired", 2))
	})

	t.Run("simple profile", func(t *testing.T) {
		require.NoError(t, observability.InitServerLogger(observability.ServerLogOptions{
			Service: "painel-test",
			Level:   " WARNING ",
			Profile: "SIMPLE",
		}))
		require.NotNil(t, observability.ServerLogger)
	})

	t.Run("server accessor prefers server logger", func(t *testing.T) {
		require.Same(t, observability.ServerLogger, observability.Server())
	})
}

func TestOrNop(t *testing.T) {
	logger := observability.OrNop(nil)
	require.NotNil(t, logger)
	logger.Warn("discarded")

	cli, err := logging.NewCLI("ornop-test")
	require.NoError(t, err)
	require.Same(t, cli, observability.OrNop(cli))
}

func TestEmbeddedCrucible(t *testing.T) {
	version := crucible.GetVersion()
	require.NotEmpty(t, version.Gofulmen)
	require.NotEmpty(t, version.Crucible)
	require.NotEmpty(t, crucible.GetVersionString())
}
