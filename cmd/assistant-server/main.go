// cmd/assistant-server/main.go
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"riskintel-assistant/internal/common/config"
	"riskintel-assistant/internal/common/database"
	"riskintel-assistant/internal/common/llm"
	"riskintel-assistant/internal/common/logger"
	"riskintel-assistant/internal/common/observability"
	"riskintel-assistant/internal/search"
	"riskintel-assistant/internal/server"
	"riskintel-assistant/internal/session"
	"riskintel-assistant/internal/tools/entitymap"
	"riskintel-assistant/internal/workflow"
	"riskintel-assistant/pkg/registry"

	databaseretrieval "riskintel-assistant/internal/nodes/database-retrieval"
	insightgeneration "riskintel-assistant/internal/nodes/insight-generation"
	kpieditor "riskintel-assistant/internal/nodes/kpi-editor"
	kpiretrieval "riskintel-assistant/internal/nodes/kpi-retrieval"
	llmchecker "riskintel-assistant/internal/nodes/llm-checker"
	metadataretrieval "riskintel-assistant/internal/nodes/metadata-retrieval"
	"riskintel-assistant/internal/nodes/orchestrator"
	sqlgeneration "riskintel-assistant/internal/nodes/sql-generation"
	sqlmodifier "riskintel-assistant/internal/nodes/sql-modifier"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting assistant server...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Node registry ---
	reg, err := registry.LoadRegistry(cfg.Registry.Path)
	if err != nil {
		zapLog.Fatal("node registry load failed", zap.Error(err), zap.String("path", cfg.Registry.Path))
	}
	zapLog.Info("Node registry loaded",
		zap.String("version", reg.Version),
		zap.Int("nodes", len(reg.Nodes)),
	)

	// --- Shared clients ---
	llmClient := llm.NewClient(cfg.LLM)
	searchClient := search.NewClient(esClient.Client, log)
	entities := entitymap.New(pg.DB, redis.Client, config.GetDuration(cfg.Session.TTL), log)
	sessions := session.NewStore(redis.Client, config.GetDuration(cfg.Session.TTL), cfg.Session.MaxHistory, log)

	// --- Workflow nodes ---
	nodeTimeout := func(taskType string, fallback time.Duration) time.Duration {
		nc := config.GetNodeConfig(cfg, taskType)
		if nc.Timeout > 0 {
			return config.GetDuration(nc.Timeout)
		}
		return fallback
	}

	orchCfg := orchestrator.LoadConfig()
	orchCfg.Timeout = nodeTimeout(orchestrator.TaskType, orchCfg.Timeout)

	kpiCfg := kpiretrieval.LoadConfig()
	kpiCfg.Index = cfg.Search.KPIIndex
	kpiCfg.TopK = cfg.Search.KPITopK
	kpiCfg.Timeout = nodeTimeout(kpiretrieval.TaskType, kpiCfg.Timeout)

	metaCfg := metadataretrieval.LoadConfig()
	metaCfg.Index = cfg.Search.MetadataIndex
	metaCfg.TopK = cfg.Search.MetadataTopK
	metaCfg.Timeout = nodeTimeout(metadataretrieval.TaskType, metaCfg.Timeout)

	checkerCfg := llmchecker.LoadConfig()
	checkerCfg.Timeout = nodeTimeout(llmchecker.TaskType, checkerCfg.Timeout)

	sqlGenCfg := sqlgeneration.LoadConfig()
	sqlGenCfg.Timeout = nodeTimeout(sqlgeneration.TaskType, sqlGenCfg.Timeout)

	editorCfg := kpieditor.LoadConfig()
	editorCfg.Timeout = nodeTimeout(kpieditor.TaskType, editorCfg.Timeout)

	modifierCfg := sqlmodifier.LoadConfig()
	modifierCfg.Timeout = nodeTimeout(sqlmodifier.TaskType, modifierCfg.Timeout)

	dbCfg := databaseretrieval.LoadConfig()
	dbCfg.Timeout = config.GetDuration(cfg.Database.Postgres.QueryTimeout)

	insightCfg := insightgeneration.LoadConfig()
	insightCfg.Timeout = nodeTimeout(insightgeneration.TaskType, insightCfg.Timeout)

	graph := workflow.NewGraph(workflow.GraphNodes{
		Orchestrator:      orchestrator.NewHandler(orchCfg, llmClient, log),
		KPIRetrieval:      kpiretrieval.NewHandler(kpiCfg, llmClient, searchClient, log),
		MetadataRetrieval: metadataretrieval.NewHandler(metaCfg, llmClient, llmClient, searchClient, log),
		Checker:           llmchecker.NewHandler(checkerCfg, llmClient, log),
		SQLGeneration:     sqlgeneration.NewHandler(sqlGenCfg, llmClient, entities, log),
		KPIEditor:         kpieditor.NewHandler(editorCfg, llmClient, entities, log),
		SQLModifier:       sqlmodifier.NewHandler(modifierCfg, llmClient, log),
		Database:          databaseretrieval.NewHandler(dbCfg, pg.DB, log),
		Insights:          insightgeneration.NewHandler(insightCfg, llmClient, log),
	}, log)

	zapLog.Info("All workflow nodes wired successfully")

	ready := []server.ReadinessCheck{
		func(ctx context.Context) error { return pg.Ping(ctx) },
		func(ctx context.Context) error { return esClient.Ping() },
		func(ctx context.Context) error { return redis.Ping(ctx) },
	}

	srv := server.New(cfg.Server, graph, sessions, reg, ready, log)

	// --- Graceful Shutdown ---
	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(runCtx); err != nil {
		zapLog.Fatal("server failed", zap.Error(err))
	}

	zapLog.Info("Assistant server stopped gracefully")
}
