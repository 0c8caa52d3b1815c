//go:build wireinject
// +build wireinject

package runtime

import (
	"context"

	"github.com/google/wire"

	"github.com/replicore/permcore/internal/adapters/httpapi"
	"github.com/replicore/permcore/internal/adapters/pgraph"
	"github.com/replicore/permcore/internal/adapters/pgrules"
	"github.com/replicore/permcore/internal/platform/eventbus"
	"github.com/replicore/permcore/internal/platform/logger"
	postgresDb "github.com/replicore/permcore/internal/platform/postgres"
	"github.com/replicore/permcore/internal/platform/sessions"
)

// InitializeApp creates a fully configured App with all dependencies
func InitializeApp(ctx context.Context) (*App, func(), error) {
	wire.Build(
		// Bootstrap phase
		logger.NewBootstrapLogger,
		LoadConfig,

		// Logger configuration
		provideLoggerConfig,

		// Main logger
		logger.NewConfiguredLogger,
		wire.Bind(new(logger.Logger), new(*logger.SlogAdapter)),

		// Database
		ConnectDatabase,
		provideBaseRepository,
		postgresDb.NewTransactionManager,

		// Platform services
		sessions.ProviderSet,
		eventbus.ProviderSet,

		// Permissions collaborators
		provideCheckCompiler,
		provideTransientStore,
		provideEdges,
		pgraph.ProviderSet,
		pgrules.ProviderSet,

		// Application service
		provideService,

		// Auth
		provideVerifier,
		provideAuthMiddleware,

		// HTTP handlers
		httpapi.ProviderSet,
		provideVersion,

		// HTTP Server
		NewHTTPServer,

		// App
		NewApp,
	)

	return nil, nil, nil
}
