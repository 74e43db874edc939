// internal/models/metadata.go
package models

// MetadataColumn describes one column of the claims schema as stored in the
// metadata index.
type MetadataColumn struct {
	ID          string  `json:"id"`
	ColumnName  string  `json:"columnName"`
	Description string  `json:"description"`
	DataType    string  `json:"dataType"`
	TableName   string  `json:"tableName"`
	PrimaryKey  string  `json:"primaryKey,omitempty"`
	ForeignKey  string  `json:"foreignKey,omitempty"`
	Content     string  `json:"content,omitempty"`
	Score       float64 `json:"score,omitempty"`
}
