// cmd/tools/node-generator/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"riskintel-assistant/pkg/registry"
)

// NodeData holds data for templates
type NodeData struct {
	Name         string                 `json:"name"`
	PackageName  string                 `json:"packageName"`
	TaskType     string                 `json:"taskType"`
	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema"`
	ErrorCodes   []string               `json:"errorCodes"`
	Description  string                 `json:"description"`
	Category     string                 `json:"category"`
	Timeout      string                 `json:"timeout"`
	Retries      int                    `json:"retries"`
}

// parseSchema extracts properties from a JSON schema object
func parseSchema(schemaObj interface{}) map[string]interface{} {
	if schemaMap, ok := schemaObj.(map[string]interface{}); ok {
		if props, exists := schemaMap["properties"]; exists {
			if properties, ok := props.(map[string]interface{}); ok {
				return properties
			}
		}
	}
	return map[string]interface{}{}
}

// goTypeFromJSONType maps JSON schema types to Go types
func goTypeFromJSONType(jsonType interface{}, jsonFormat interface{}) string {
	if jt, ok := jsonType.(string); ok {
		switch jt {
		case "string":
			return "string"
		case "number", "integer":
			return "float64"
		case "boolean":
			return "bool"
		case "object":
			return "map[string]interface{}"
		case "array":
			return "[]interface{}"
		default:
			return "interface{}"
		}
	}
	return "interface{}"
}

// generateStructFields generates Go struct field definitions from schema properties
func generateStructFields(properties map[string]interface{}) string {
	var fields []string
	for prop, details := range properties {
		propDetails, ok := details.(map[string]interface{})
		if !ok {
			continue
		}
		goType := goTypeFromJSONType(propDetails["type"], propDetails["format"])

		comment := ""
		if desc, exists := propDetails["description"]; exists {
			if d, ok := desc.(string); ok && d != "" {
				comment = fmt.Sprintf(" // %s", d)
			}
		}

		fieldDef := fmt.Sprintf("\t%s %s `json:\"%s\"`%s", upperFirst(prop), goType, prop, comment)
		fields = append(fields, fieldDef)
	}
	return strings.Join(fields, "\n")
}

// upperFirst makes the first character uppercase
func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// errVarName turns UPPER_SNAKE error codes into Go sentinel names,
// e.g. SQL_GENERATION_FAILED -> ErrSQLGenerationFailed.
func errVarName(code string) string {
	var b strings.Builder
	b.WriteString("Err")
	for _, part := range strings.Split(code, "_") {
		if part == "" {
			continue
		}
		switch part {
		case "SQL", "LLM", "KPI", "ID":
			b.WriteString(part)
		default:
			b.WriteString(strings.ToUpper(part[:1]) + strings.ToLower(part[1:]))
		}
	}
	return b.String()
}

const configTemplate = `package {{ .PackageName }}

import "time"

// Config holds settings for the {{ .Name }} node.
type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: {{ .Timeout | parseTimeout }},
	}
}
`

const modelsTemplate = `// internal/nodes/{{ .TaskType }}/models.go
package {{ .PackageName }}

import (
	"context"

	"riskintel-assistant/internal/common/llm"
)

// LLMClient is satisfied by *llm.Client. Remove if this node does not call the LLM.
type LLMClient interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

type Input struct {
{{- $inputProps := parseSchema .InputSchema }}
{{- if $inputProps }}
{{ generateStructFields $inputProps }}
{{- else }}
	Query string ` + "`json:\"query\"`" + `
{{- end }}
}

type Output struct {
{{- $outputProps := parseSchema .OutputSchema }}
{{- if $outputProps }}
{{ generateStructFields $outputProps }}
{{- end }}
}
`

const handlerTemplate = `package {{ .PackageName }}

import (
	"context"
{{- if .ErrorCodes }}
	"errors"
{{- end }}

	"riskintel-assistant/internal/common/logger"
)

const (
	TaskType = "{{ .TaskType }}"
)
{{ if .ErrorCodes }}
var (
{{- range .ErrorCodes }}
	{{ errVarName . }} = errors.New("{{ . }}")
{{- end }}
)
{{ end }}
type Handler struct {
	config *Config
	llm    LLMClient
	logger logger.Logger
}

func NewHandler(config *Config, client LLMClient, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		llm:    client,
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
	// TODO: implement {{ .Name }} ({{ .Description }})
	return &Output{}, nil
}
`

const testTemplate = `package {{ .PackageName }}

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskintel-assistant/internal/common/llm"
	"riskintel-assistant/internal/common/logger"
)

type fakeLLM struct {
	response string
	err      error
	calls    []llm.CompletionRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newTestHandler(t *testing.T, client *fakeLLM) *Handler {
	t.Helper()
	cfg := LoadConfig()
	cfg.Timeout = 5 * time.Second
	return NewHandler(cfg, client, logger.NewTestLogger(t))
}

func TestExecute(t *testing.T) {
	h := newTestHandler(t, &fakeLLM{})

	out, err := h.Execute(context.Background(), &Input{})

	require.NoError(t, err)
	assert.NotNil(t, out)
}
`

func main() {
	taskType := flag.String("taskType", "", "Task type from registry (e.g., sql-generation)")
	outputDir := flag.String("output", "./internal/nodes/", "Output directory for the generated node")
	registryPath := flag.String("registry", "configs/registry.json", "Path to the node registry JSON file")
	flag.Parse()

	if *taskType == "" {
		fmt.Println("Usage: node-generator --taskType <type> [--output <dir>] [--registry <path>]")
		fmt.Println("\nExample:")
		fmt.Println("  go run cmd/tools/node-generator/main.go --taskType sql-generation")
		os.Exit(1)
	}

	reg, err := registry.LoadRegistry(*registryPath)
	if err != nil {
		fmt.Printf("Error loading registry from %s: %v\n", *registryPath, err)
		os.Exit(1)
	}

	node, ok := reg.Get(*taskType)
	if !ok {
		fmt.Printf("Task type '%s' not found in registry %s\n", *taskType, *registryPath)
		os.Exit(1)
	}

	data := NodeData{
		Name:         node.DisplayName,
		PackageName:  strings.ReplaceAll(node.TaskType, "-", ""),
		TaskType:     node.TaskType,
		InputSchema:  node.InputSchema,
		OutputSchema: node.OutputSchema,
		ErrorCodes:   node.ErrorCodes,
		Description:  node.Description,
		Category:     node.Category,
		Timeout:      node.Timeout,
		Retries:      node.Retries,
	}

	nodeDir := filepath.Join(*outputDir, node.TaskType)
	if err := os.MkdirAll(nodeDir, 0755); err != nil {
		fmt.Printf("Error creating directory: %v\n", err)
		os.Exit(1)
	}

	funcMap := template.FuncMap{
		"parseSchema":          parseSchema,
		"goTypeFromJSONType":   goTypeFromJSONType,
		"generateStructFields": generateStructFields,
		"upperFirst":           upperFirst,
		"errVarName":           errVarName,
		"parseTimeout": func(timeout string) string {
			if timeout == "" {
				return "30 * time.Second"
			}
			return fmt.Sprintf("%s * time.Second", strings.TrimSuffix(timeout, "s"))
		},
	}

	templates := map[string]string{
		"config.go":       configTemplate,
		"models.go":       modelsTemplate,
		"handler.go":      handlerTemplate,
		"handler_test.go": testTemplate,
	}

	for filename, tmplStr := range templates {
		tmpl, err := template.New(filename).Funcs(funcMap).Parse(tmplStr)
		if err != nil {
			fmt.Printf("Error parsing template %s: %v\n", filename, err)
			continue
		}

		filePath := filepath.Join(nodeDir, filename)
		file, err := os.Create(filePath)
		if err != nil {
			fmt.Printf("Error creating file %s: %v\n", filePath, err)
			continue
		}

		if err := tmpl.Execute(file, data); err != nil {
			fmt.Printf("Error executing template for %s: %v\n", filename, err)
		}
		file.Close()

		fmt.Printf("✓ Generated %s\n", filePath)
	}

	fmt.Printf("\n✅ Node scaffold generated at: %s\n", nodeDir)
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("  1. Implement the node logic in handler.go\n")
	fmt.Printf("  2. Adjust the dependency interfaces in models.go\n")
	fmt.Printf("  3. Wire the node into internal/workflow/graph.go\n")
	fmt.Printf("  4. Add configuration to configs/config.yaml\n")
}
