// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"welfare-caseworker/pkg/registry"
)

var registryPath string

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	// Export command flags
	exportCmd.StringVar(&registryPath, "path", "configs/operation-registry.json", "Path to write the built-in catalog to")
	force := exportCmd.Bool("force", false, "Overwrite an existing file")

	// Update command flags
	updateCmd.StringVar(&registryPath, "path", "configs/operation-registry.json", "Path to registry file")
	idUpdate := updateCmd.String("id", "", "Operation ID to update (e.g., approve_case)")
	field := updateCmd.String("field", "", "Field to update (displayName, description, category, tags, errorCodes)")
	value := updateCmd.String("value", "", "New value; tags and errorCodes take a comma-separated list")

	// Validate command flags
	validateCmd.StringVar(&registryPath, "path", "configs/operation-registry.json", "Path to registry file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "export":
		_ = exportCmd.Parse(os.Args[2:])
		if err := exportRegistry(registryPath, *force); err != nil {
			fmt.Printf("Error exporting registry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %d operations to %s\n", len(registry.Default().Operations), registryPath)

	case "update":
		_ = updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" {
			fmt.Println("Error: id and field are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateOperation(registryPath, *idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating operation: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated operation %s, field %s\n", *idUpdate, *field)

	case "validate":
		_ = validateCmd.Parse(os.Args[2:])
		reg, err := registry.LoadRegistry(registryPath)
		if err == nil {
			err = reg.Validate()
		}
		if err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d operations.\n", len(reg.Operations))

	case "help":
		fallthrough
	default:
		help()
	}
}

func exportRegistry(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists, pass -force to overwrite", path)
	}
	reg := registry.Default()
	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return reg.Save(path)
}

func updateOperation(path, id, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	found := false
	for i := range reg.Operations {
		if reg.Operations[i].ID != id {
			continue
		}
		found = true
		switch field {
		case "displayName":
			reg.Operations[i].DisplayName = value
		case "description":
			reg.Operations[i].Description = value
		case "category":
			reg.Operations[i].Category = value
		case "tags":
			reg.Operations[i].Tags = splitList(value)
		case "errorCodes":
			reg.Operations[i].ErrorCodes = splitList(value)
		default:
			return fmt.Errorf("unknown field: %s", field)
		}
		break
	}
	if !found {
		return fmt.Errorf("operation with ID %s not found", id)
	}

	if err := reg.Validate(); err != nil {
		return err
	}
	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return reg.Save(path)
}

func splitList(value string) []string {
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  export   Write the built-in operation catalog to a file
  update   Update an existing operation's field
  validate Validate the registry file
  help     Show this help message

Examples:
  registry-updater export -path configs/operation-registry.json
  registry-updater update -id approve_case -field tags -value human-in-the-loop,audit
  registry-updater validate -path configs/operation-registry.json

Use 'registry-updater <command> -h' for more information about a command.
` + "\n")
}
