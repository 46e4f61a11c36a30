package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/agenthands/symbiosis/internal/config"
)

type Neo4jDriver struct {
	Driver   neo4j.DriverWithContext
	database string
	log      *zap.Logger
}

// NewNeo4jDriver opens the driver and verifies connectivity. Callers own the
// returned driver and must Close it.
func NewNeo4jDriver(ctx context.Context, cfg config.Neo4jConfig, log *zap.Logger) (*Neo4jDriver, error) {
	timeout := time.Duration(cfg.ConnectTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *neo4j.Config) {
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("init neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify connectivity to %s: %w", cfg.URI, err)
	}

	log.Info("connected to graph store", zap.String("uri", cfg.URI), zap.String("database", cfg.Database))
	return &Neo4jDriver{Driver: driver, database: cfg.Database, log: log}, nil
}

func (d *Neo4jDriver) Close(ctx context.Context) error {
	return d.Driver.Close(ctx)
}

func (d *Neo4jDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	return d.execute(ctx, query, params, d.queryOptions()...)
}

func (d *Neo4jDriver) ExecuteReadQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	return d.execute(ctx, query, params, append(d.queryOptions(), neo4j.ExecuteQueryWithReadersRouting())...)
}

func (d *Neo4jDriver) queryOptions() []neo4j.ExecuteQueryConfigurationOption {
	var opts []neo4j.ExecuteQueryConfigurationOption
	if d.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(d.database))
	}
	return opts
}

func (d *Neo4jDriver) execute(ctx context.Context, query string, params map[string]interface{}, opts ...neo4j.ExecuteQueryConfigurationOption) (neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, d.Driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return neo4j.EagerResult{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return *result, nil
}

func (d *Neo4jDriver) BuildIndices(ctx context.Context) error {
	for _, q := range SchemaQueries {
		if _, err := d.ExecuteQuery(ctx, q, nil); err != nil {
			// Older servers reject IF NOT EXISTS; the constraint is usually already there.
			d.log.Warn("failed to create schema object", zap.String("query", q), zap.Error(err))
		}
	}
	return nil
}
