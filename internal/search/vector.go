// Package search provides kNN vector retrieval over the Elasticsearch indexes
// that hold KPI definitions and schema metadata.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"

	"riskintel-assistant/internal/common/logger"
)

// VectorField is the dense_vector field every document carries.
const VectorField = "content_vector"

// Hit is a single search result.
type Hit struct {
	ID     string
	Score  float64
	Source map[string]interface{}
}

// Client executes vector queries against Elasticsearch.
type Client struct {
	es     *elasticsearch.Client
	logger logger.Logger
}

// NewClient creates a search client.
func NewClient(es *elasticsearch.Client, log logger.Logger) *Client {
	return &Client{es: es, logger: log}
}

// KNNSearch runs a cosine kNN query against an index and returns the top k
// hits with the requested source fields.
func (c *Client) KNNSearch(ctx context.Context, index string, vector []float64, k int, fields []string) ([]Hit, error) {
	query := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          VectorField,
			"query_vector":   vector,
			"k":              k,
			"num_candidates": k * 10,
		},
		"size": k,
	}
	if len(fields) > 0 {
		query["_source"] = fields
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal knn query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search error [%s]: %s", res.Status(), string(msg))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string                 `json:"_id"`
				Score  float64                `json:"_score"`
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score, Source: h.Source})
	}

	c.logger.Debug("knn search completed", map[string]interface{}{
		"index": index,
		"k":     k,
		"hits":  len(hits),
	})

	return hits, nil
}

// CreateVectorIndex creates an index whose mapping carries a dense_vector
// field with cosine similarity. Existing indexes are left untouched.
func (c *Client) CreateVectorIndex(ctx context.Context, index string, dims int) error {
	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				VectorField: map[string]interface{}{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal index mapping: %w", err)
	}

	res, err := c.es.Indices.Create(
		index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("index create request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index create error [%s]: %s", res.Status(), string(msg))
	}

	c.logger.Info("vector index created", map[string]interface{}{
		"index": index,
		"dims":  dims,
	})

	return nil
}

// DeleteIndex removes an index. A missing index is not an error.
func (c *Client) DeleteIndex(ctx context.Context, index string) error {
	res, err := c.es.Indices.Delete(
		[]string{index},
		c.es.Indices.Delete.WithContext(ctx),
		c.es.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return fmt.Errorf("index delete request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index delete error [%s]: %s", res.Status(), string(msg))
	}

	return nil
}

// IndexDocument stores one document under the given id.
func (c *Client) IndexDocument(ctx context.Context, index, id string, doc map[string]interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	res, err := c.es.Index(
		index,
		bytes.NewReader(body),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(id),
	)
	if err != nil {
		return fmt.Errorf("index request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index error [%s]: %s", res.Status(), string(msg))
	}

	return nil
}
