// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"riskintel-assistant/pkg/registry"
)

var registryPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	// Add command flags
	idAdd := addCmd.String("id", "", "Node ID (e.g., workflow.sql.generate)")
	displayName := addCmd.String("displayName", "", "Display Name (e.g., SQL Generation)")
	description := addCmd.String("description", "", "Description")
	category := addCmd.String("category", "", "Category (e.g., retrieval, sql, insight)")
	taskType := addCmd.String("taskType", "", "Workflow task type (e.g., sql-generation)")
	version := addCmd.String("version", "1.0.0", "Version")
	addCmd.StringVar(&registryPath, "path", "configs/registry.json", "Path to registry file")

	// Update command flags
	idUpdate := updateCmd.String("id", "", "Node ID to update")
	field := updateCmd.String("field", "", "Field to update (version, timeout, etc.)")
	value := updateCmd.String("value", "", "New value for the field")
	updateCmd.StringVar(&registryPath, "path", "configs/registry.json", "Path to registry file")

	// Validate command flags
	validateCmd.StringVar(&registryPath, "path", "configs/registry.json", "Path to registry file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *idAdd == "" || *displayName == "" || *description == "" || *category == "" || *taskType == "" {
			fmt.Println("Error: id, displayName, description, category, and taskType are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		node := registry.Node{
			ID:           *idAdd,
			DisplayName:  *displayName,
			Description:  *description,
			Category:     *category,
			Version:      *version,
			TaskType:     *taskType,
			InputSchema:  map[string]interface{}{},
			OutputSchema: map[string]interface{}{},
			ErrorCodes:   []string{},
			Timeout:      "30s",
			Retries:      1,
			Tags:         []string{},
		}
		if err := addNode(&node); err != nil {
			fmt.Printf("Error adding node: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added node: %s\n", *idAdd)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateNode(*idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating node: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated node %s, field %s to %s\n", *idUpdate, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

func addNode(node *registry.Node) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		// If the file doesn't exist yet, start a fresh registry
		if os.IsNotExist(err) {
			reg = &registry.NodeRegistry{
				Version:     "1.0.0",
				LastUpdated: time.Now().Format(time.RFC3339),
				Nodes:       []registry.Node{},
			}
		} else {
			return fmt.Errorf("failed to load registry: %w", err)
		}
	}

	for _, existing := range reg.Nodes {
		if existing.ID == node.ID {
			return fmt.Errorf("node with ID %s already exists", node.ID)
		}
		if existing.TaskType == node.TaskType {
			return fmt.Errorf("node with task type %s already exists", node.TaskType)
		}
	}

	reg.Nodes = append(reg.Nodes, *node)
	reg.LastUpdated = time.Now().Format(time.RFC3339)

	return saveRegistry(reg, registryPath)
}

func updateNode(id, field, value string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	found := false
	for i := range reg.Nodes {
		if reg.Nodes[i].ID == id {
			found = true
			switch field {
			case "version":
				reg.Nodes[i].Version = value
			case "displayName":
				reg.Nodes[i].DisplayName = value
			case "description":
				reg.Nodes[i].Description = value
			case "category":
				reg.Nodes[i].Category = value
			case "taskType":
				reg.Nodes[i].TaskType = value
			case "timeout":
				reg.Nodes[i].Timeout = value
			case "retries":
				retries, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("invalid retries value: %w", err)
				}
				reg.Nodes[i].Retries = retries
			default:
				return fmt.Errorf("unknown field: %s", field)
			}
			break
		}
	}

	if !found {
		return fmt.Errorf("node with ID %s not found", id)
	}

	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return saveRegistry(reg, registryPath)
}

func validateRegistry() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	if len(reg.Nodes) == 0 {
		return fmt.Errorf("registry contains no nodes")
	}

	ids := make(map[string]bool)
	taskTypes := make(map[string]bool)
	for _, node := range reg.Nodes {
		if node.ID == "" {
			return fmt.Errorf("node missing required field: ID")
		}
		if node.DisplayName == "" {
			return fmt.Errorf("node %s missing required field: DisplayName", node.ID)
		}
		if node.TaskType == "" {
			return fmt.Errorf("node %s missing required field: TaskType", node.ID)
		}
		if node.Category == "" {
			return fmt.Errorf("node %s missing required field: Category", node.ID)
		}
		if ids[node.ID] {
			return fmt.Errorf("duplicate node ID: %s", node.ID)
		}
		ids[node.ID] = true
		if taskTypes[node.TaskType] {
			return fmt.Errorf("duplicate task type: %s", node.TaskType)
		}
		taskTypes[node.TaskType] = true

		if node.Timeout != "" {
			if _, err := time.ParseDuration(node.Timeout); err != nil {
				return fmt.Errorf("node %s has invalid timeout %q: %w", node.ID, node.Timeout, err)
			}
		}
	}

	fmt.Printf("Registry validation passed. Found %d nodes.\n", len(reg.Nodes))
	return nil
}

// saveRegistry handles saving the registry to file
func saveRegistry(reg *registry.NodeRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	err = os.WriteFile(path, data, 0644)
	if err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}

	return nil
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  add     Add a new node to the registry
  update  Update an existing node's field
  validate Validate the registry file
  help    Show this help message

Examples:
  registry-updater add -id workflow.sql.generate -displayName "SQL Generation" -description "Builds a PostgreSQL query from retrieved metadata" -category sql -taskType sql-generation
  registry-updater update -id workflow.sql.generate -field timeout -value 90s
  registry-updater validate -path configs/registry.json

Use 'registry-updater <command> -h' for more information about a command.
`)
}
