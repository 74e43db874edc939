// internal/nodes/database-retrieval/models.go
package databaseretrieval

type Input struct {
	SQL       string `json:"sql"`
	Validated bool   `json:"validated"`
}

// TableColumn describes one column of a table as reported by the catalog.
type TableColumn struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}
