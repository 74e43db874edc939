// internal/models/kpi.go
package models

// KPI is a stored metric definition retrieved from the KPI index.
type KPI struct {
	ID           string `json:"id"`
	MetricName   string `json:"metricName"`
	Description  string `json:"description"`
	SQLQuery     string `json:"sqlQuery"`
	TableColumns string `json:"tableColumns"`
}
