// pkg/registry/schema.go
package registry

// NodeRegistry is the catalog of workflow nodes loaded from
// configs/registry.json.
type NodeRegistry struct {
	Version     string `json:"version"`
	LastUpdated string `json:"lastUpdated"`
	Nodes       []Node `json:"nodes"`
}

type Node struct {
	ID           string                 `json:"id"`
	DisplayName  string                 `json:"displayName"`
	Description  string                 `json:"description"`
	Category     string                 `json:"category"`
	Version      string                 `json:"version"`
	TaskType     string                 `json:"taskType"`
	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema"`
	ErrorCodes   []string               `json:"errorCodes"`
	Timeout      string                 `json:"timeout"`
	Retries      int                    `json:"retries"`
	Tags         []string               `json:"tags"`
}
