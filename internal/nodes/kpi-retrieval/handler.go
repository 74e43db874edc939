package kpiretrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"riskintel-assistant/internal/common/logger"
	"riskintel-assistant/internal/models"
)

const (
	TaskType = "kpi-retrieval"
)

var (
	ErrEmbeddingFailed = errors.New("EMBEDDING_FAILED")
	ErrSearchFailed    = errors.New("SEARCH_QUERY_FAILED")
	ErrSearchTimeout   = errors.New("SEARCH_TIMEOUT")
)

var kpiFields = []string{"id", "metric_name", "table_columns", "sql_query", "description"}

type Handler struct {
	config   *Config
	embedder Embedder
	search   VectorSearcher
	logger   logger.Logger
}

func NewHandler(config *Config, embedder Embedder, search VectorSearcher, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		embedder: embedder,
		search:   search,
		logger: log.With(map[string]interface{}{
			"node": TaskType,
		}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	// Nothing to retrieve against; the workflow treats this as a no-op.
	if input.Query == "" {
		return &Output{}, nil
	}

	vector, err := h.embedder.Embed(ctx, input.Query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrSearchTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	var hits []searchHit
	var lastErr error

	for attempt := 0; attempt <= h.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ErrSearchTimeout
			}
		}

		raw, err := h.search.KNNSearch(ctx, h.config.Index, vector, h.config.TopK, kpiFields)

		if ctx.Err() != nil ||
			errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, context.Canceled) {
			return nil, ErrSearchTimeout
		}

		if err == nil {
			hits = make([]searchHit, len(raw))
			for i, r := range raw {
				hits[i] = searchHit{id: r.ID, source: r.Source}
			}
			lastErr = nil
			break
		}
		lastErr = err
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, lastErr)
	}

	if len(hits) == 0 {
		h.logger.Info("no KPI definitions matched", map[string]interface{}{
			"query": input.Query,
		})
		return &Output{}, nil
	}

	top := hits[0]
	kpi := &models.KPI{
		ID:           top.id,
		MetricName:   asString(top.source["metric_name"]),
		Description:  asString(top.source["description"]),
		SQLQuery:     asString(top.source["sql_query"]),
		TableColumns: asString(top.source["table_columns"]),
	}

	h.logger.Info("top KPI selected", map[string]interface{}{
		"metricName": kpi.MetricName,
		"hits":       len(hits),
	})

	return &Output{TopKPI: kpi, Hits: len(hits)}, nil
}

type searchHit struct {
	id     string
	source map[string]interface{}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
