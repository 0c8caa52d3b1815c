package runtime

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/replicore/permcore/internal/adapters/auth"
	"github.com/replicore/permcore/internal/adapters/httpapi/middleware"
	"github.com/replicore/permcore/internal/adapters/pgraph"
	"github.com/replicore/permcore/internal/adapters/pgtransient"
	"github.com/replicore/permcore/internal/check"
	"github.com/replicore/permcore/internal/permissions/application"
	"github.com/replicore/permcore/internal/permissions/ports"
	"github.com/replicore/permcore/internal/permissions/seeder"
	"github.com/replicore/permcore/internal/permissions/trigger"
	"github.com/replicore/permcore/internal/platform/eventbus"
	"github.com/replicore/permcore/internal/platform/logger"
	"github.com/replicore/permcore/internal/platform/postgres"
	platformseeder "github.com/replicore/permcore/internal/platform/seeder"
	"github.com/replicore/permcore/internal/platform/sessions"
)

// provideVersion provides the application version
func provideVersion() string {
	return "1.0.0"
}

// provideLoggerConfig creates logger config from runtime config
func provideLoggerConfig(config Config) logger.Config {
	return logger.Config{
		Environment: config.Environment,
		LogLevel:    config.LogLevel,
	}
}

// provideBaseRepository builds the shared repository components over the pool
func provideBaseRepository(pool *pgxpool.Pool) postgres.BaseRepository {
	return postgres.NewBaseRepository(pool)
}

// provideCheckCompiler provides the reference CHECK compiler
func provideCheckCompiler() ports.CheckCompiler {
	return check.NewCompiler()
}

// provideVerifier builds the bearer-token verifier from config
func provideVerifier(ctx context.Context, config Config) (*auth.Verifier, error) {
	return auth.NewVerifier(ctx, config.JWKSEndpoint, config.JWTIssuer)
}

// provideTransientStore selects the configured transient-permissions
// store: in-process for a single-node deployment, Postgres-backed when
// several reader processes share one LUT.
func provideTransientStore(config Config, repo postgres.BaseRepository) (ports.TransientStore, error) {
	switch config.TransientStore {
	case "memory":
		return trigger.NewMemStore(), nil
	case "postgres":
		return pgtransient.New(repo), nil
	default:
		return nil, fmt.Errorf("unknown transient store %q", config.TransientStore)
	}
}

// provideEdges prepares the rules storage (seeding the development rule
// set when configured) and derives the scope-walk FK edges from the
// database schema.
func provideEdges(ctx context.Context, config Config, pool *pgxpool.Pool, repo postgres.BaseRepository, log logger.Logger) (pgraph.Edges, error) {
	if config.SeedRules {
		orchestrator := platformseeder.NewOrchestrator(log, pool, []platformseeder.Seeder{
			seeder.NewRulesSeeder(),
		})
		if err := orchestrator.RunAll(ctx); err != nil {
			return nil, err
		}
	}
	return pgraph.LoadEdges(ctx, repo)
}

// provideService assembles the application service; the Postgres graph
// serves as both the read graph and the write path's upstream.
func provideService(
	rulesSource ports.RulesSource,
	checker ports.CheckCompiler,
	transientLUT ports.TransientStore,
	registry sessions.Registry,
	graph *pgraph.Graph,
	bus *eventbus.Bus,
	log logger.Logger,
) *application.Service {
	return application.NewService(rulesSource, checker, transientLUT, registry, graph, graph, bus, log)
}

// provideAuthMiddleware builds the HTTP auth middleware
func provideAuthMiddleware(verifier *auth.Verifier, log logger.Logger) *middleware.AuthMiddleware {
	return middleware.NewAuthMiddleware(verifier, log)
}
