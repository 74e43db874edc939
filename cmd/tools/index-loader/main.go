// cmd/tools/index-loader/main.go
//
// index-loader rebuilds the two vector indexes from seed files: it embeds
// each document's content and writes it to Elasticsearch. Run it once before
// starting the assistant server, and again whenever the seeds change.
//
// Usage:
//
//	index-loader -kpi configs/seed/kpi-definitions.json -metadata configs/seed/schema-metadata.json [-recreate]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"riskintel-assistant/internal/common/config"
	"riskintel-assistant/internal/common/database"
	"riskintel-assistant/internal/common/llm"
	"riskintel-assistant/internal/common/logger"
	"riskintel-assistant/internal/search"
)

type seedDocument struct {
	ID      string                 `json:"id"`
	Content string                 `json:"content"`
	Fields  map[string]interface{} `json:"fields"`
}

func main() {
	kpiPath := flag.String("kpi", "configs/seed/kpi-definitions.json", "KPI definitions seed file")
	metadataPath := flag.String("metadata", "configs/seed/schema-metadata.json", "schema metadata seed file")
	recreate := flag.Bool("recreate", false, "drop and recreate the indexes before loading")
	flag.Parse()

	zapLog := logger.New("info", "console")
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	esClient, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		zapLog.Fatal("elasticsearch failed", zap.Error(err))
	}
	if err := esClient.Ping(); err != nil {
		zapLog.Fatal("elasticsearch unreachable", zap.Error(err))
	}

	llmClient := llm.NewClient(cfg.LLM)
	searchClient := search.NewClient(esClient.Client, log)

	ctx := context.Background()

	loads := []struct {
		index string
		path  string
	}{
		{cfg.Search.KPIIndex, *kpiPath},
		{cfg.Search.MetadataIndex, *metadataPath},
	}

	for _, l := range loads {
		if *recreate {
			if err := searchClient.DeleteIndex(ctx, l.index); err != nil {
				zapLog.Fatal("index delete failed", zap.String("index", l.index), zap.Error(err))
			}
		}
		if err := searchClient.CreateVectorIndex(ctx, l.index, cfg.Search.Dimensions); err != nil {
			// An already-existing index is fine unless a rebuild was requested.
			zapLog.Warn("index create skipped", zap.String("index", l.index), zap.Error(err))
		}

		count, err := loadSeed(ctx, searchClient, llmClient, l.index, l.path)
		if err != nil {
			zapLog.Fatal("seed load failed", zap.String("index", l.index), zap.Error(err))
		}
		zapLog.Info("seed loaded", zap.String("index", l.index), zap.Int("documents", count))
	}
}

func loadSeed(ctx context.Context, searchClient *search.Client, llmClient *llm.Client, index, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var docs []seedDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return 0, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	for i, doc := range docs {
		if doc.Content == "" {
			return i, fmt.Errorf("document %q has no content to embed", doc.ID)
		}

		vector, err := llmClient.Embed(ctx, doc.Content)
		if err != nil {
			return i, fmt.Errorf("embed document %q: %w", doc.ID, err)
		}

		body := make(map[string]interface{}, len(doc.Fields)+2)
		for k, v := range doc.Fields {
			body[k] = v
		}
		body["content"] = doc.Content
		body[search.VectorField] = vector

		if err := searchClient.IndexDocument(ctx, index, doc.ID, body); err != nil {
			return i, fmt.Errorf("index document %q: %w", doc.ID, err)
		}
	}

	return len(docs), nil
}
