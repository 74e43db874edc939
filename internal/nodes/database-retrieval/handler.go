package databaseretrieval

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"riskintel-assistant/internal/common/logger"
	"riskintel-assistant/internal/models"
)

const (
	TaskType = "database-retrieval"
)

var (
	ErrSQLNotValidated = errors.New("SQL_NOT_VALIDATED")
	ErrEmptySQL        = errors.New("EMPTY_SQL")
)

type Handler struct {
	config *Config
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(config *Config, db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		logger: log.With(map[string]interface{}{
			"node": TaskType,
		}),
	}
}

// Execute runs the generated SQL. Query failures are reported inside the
// result rather than returned, so a bad query still produces a turn the
// user can read.
func (h *Handler) Execute(ctx context.Context, input *Input) (*models.RetrievalResult, error) {
	if input.SQL == "" {
		return nil, ErrEmptySQL
	}
	if !input.Validated {
		return nil, ErrSQLNotValidated
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	start := time.Now()
	result := &models.RetrievalResult{QueryExecuted: input.SQL}

	rows, err := h.db.QueryContext(ctx, input.SQL)
	if err != nil {
		result.Error = err.Error()
		result.ExecutionTime = fmt.Sprintf("%.2fs", time.Since(start).Seconds())
		h.logger.Error("query execution failed", map[string]interface{}{
			"error": err.Error(),
		})
		return result, nil
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		result.Error = err.Error()
		result.ExecutionTime = fmt.Sprintf("%.2fs", time.Since(start).Seconds())
		return result, nil
	}
	result.Columns = columns

	for rows.Next() {
		if h.config.MaxRows > 0 && len(result.Rows) >= h.config.MaxRows {
			h.logger.Warn("row cap reached, truncating result", map[string]interface{}{
				"maxRows": h.config.MaxRows,
			})
			break
		}

		values := make([]interface{}, len(columns))
		scanTargets := make([]interface{}, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			result.Error = err.Error()
			result.ExecutionTime = fmt.Sprintf("%.2fs", time.Since(start).Seconds())
			return result, nil
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		result.Error = err.Error()
		result.ExecutionTime = fmt.Sprintf("%.2fs", time.Since(start).Seconds())
		return result, nil
	}

	result.RowCount = len(result.Rows)
	result.Success = true
	result.ExecutionTime = fmt.Sprintf("%.2fs", time.Since(start).Seconds())

	h.logger.Info("query executed", map[string]interface{}{
		"rows":     result.RowCount,
		"duration": result.ExecutionTime,
	})

	return result, nil
}

// GetTableSchema reads column metadata for a table from the catalog.
func (h *Handler) GetTableSchema(ctx context.Context, table string) ([]TableColumn, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	const query = `SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position`

	rows, err := h.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("schema lookup for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []TableColumn
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, err
		}
		columns = append(columns, TableColumn{
			Name:     name,
			DataType: dataType,
			Nullable: nullable == "YES",
		})
	}
	return columns, rows.Err()
}

// normalizeValue makes scanned values JSON-friendly. Drivers hand back
// []byte for text and numeric columns, and time.Time for dates.
func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return v
	}
}
