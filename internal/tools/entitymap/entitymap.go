// Package entitymap resolves the distinct stored values of categorical
// columns, so prompts can offer the model exact values instead of user
// wording. Lookups hit Postgres once and are cached in Redis.
package entitymap

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"riskintel-assistant/internal/common/logger"
)

const (
	cachePrefix = "entitymap:"
	table       = "claims_summary"
)

type Tool struct {
	db       *sql.DB
	cache    *redis.Client
	ttl      time.Duration
	maxValue int
	logger   logger.Logger
}

func New(db *sql.DB, cache *redis.Client, ttl time.Duration, log logger.Logger) *Tool {
	return &Tool{
		db:       db,
		cache:    cache,
		ttl:      ttl,
		maxValue: 200,
		logger: log.With(map[string]interface{}{
			"component": "entitymap",
		}),
	}
}

// ColumnValues returns the distinct non-empty values stored in a column.
// A cache miss falls through to Postgres; a cache write failure is logged
// and otherwise ignored.
func (t *Tool) ColumnValues(ctx context.Context, column string) ([]string, error) {
	if err := validateIdentifier(column); err != nil {
		return nil, err
	}

	key := cachePrefix + column
	if t.cache != nil {
		if cached, err := t.cache.Get(ctx, key).Result(); err == nil {
			var values []string
			if err := json.Unmarshal([]byte(cached), &values); err == nil {
				return values, nil
			}
		}
	}

	values, err := t.queryValues(ctx, column)
	if err != nil {
		return nil, err
	}

	if t.cache != nil {
		payload, err := json.Marshal(values)
		if err == nil {
			if err := t.cache.Set(ctx, key, payload, t.ttl).Err(); err != nil {
				t.logger.Warn("entity value cache write failed", map[string]interface{}{
					"column": column,
					"error":  err.Error(),
				})
			}
		}
	}

	return values, nil
}

func (t *Tool) queryValues(ctx context.Context, column string) ([]string, error) {
	query := fmt.Sprintf(
		`SELECT DISTINCT %q FROM %s WHERE %q IS NOT NULL AND TRIM(%q::text) <> '' ORDER BY %q LIMIT %d`,
		column, table, column, column, column, t.maxValue)

	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("distinct values for %s: %w", column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// AvailableColumns lists the text columns of the claims table, the set a
// value lookup can target.
func (t *Tool) AvailableColumns(ctx context.Context) ([]string, error) {
	query := `SELECT column_name FROM information_schema.columns
		WHERE table_name = $1 AND data_type IN ('text', 'character varying')
		ORDER BY ordinal_position`

	rows, err := t.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("list columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

// Invalidate drops the cached values for a column.
func (t *Tool) Invalidate(ctx context.Context, column string) error {
	if t.cache == nil {
		return nil
	}
	return t.cache.Del(ctx, cachePrefix+column).Err()
}

// validateIdentifier rejects names that cannot be safely double-quoted
// into a query. Column names come from retrieved metadata, not users, but
// they still pass through an LLM before landing here.
func validateIdentifier(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty column name")
	}
	if strings.ContainsAny(name, "\";") {
		return fmt.Errorf("invalid column name: %s", name)
	}
	return nil
}
