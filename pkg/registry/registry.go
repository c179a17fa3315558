// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadRegistry reads a catalog from a JSON file.
func LoadRegistry(path string) (*OperationRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg OperationRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// Save writes the catalog as indented JSON, creating parent directories.
func (r *OperationRegistry) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

// Validate checks ids are unique and every operation names a route.
func (r *OperationRegistry) Validate() error {
	if len(r.Operations) == 0 {
		return fmt.Errorf("registry contains no operations")
	}

	ids := make(map[string]bool)
	routes := make(map[string]string)
	for _, op := range r.Operations {
		if op.ID == "" {
			return fmt.Errorf("operation missing required field: id")
		}
		if ids[op.ID] {
			return fmt.Errorf("duplicate operation id: %s", op.ID)
		}
		ids[op.ID] = true

		if op.DisplayName == "" {
			return fmt.Errorf("operation %s missing required field: displayName", op.ID)
		}
		if op.Category == "" {
			return fmt.Errorf("operation %s missing required field: category", op.ID)
		}
		switch op.Method {
		case "GET", "POST":
		default:
			return fmt.Errorf("operation %s has unsupported method %q", op.ID, op.Method)
		}
		if !strings.HasPrefix(op.Path, "/") {
			return fmt.Errorf("operation %s path must start with /: %q", op.ID, op.Path)
		}
		route := op.Method + " " + op.Path
		if other, ok := routes[route]; ok {
			return fmt.Errorf("operations %s and %s share route %s", other, op.ID, route)
		}
		routes[route] = op.ID
	}
	return nil
}

// Find returns the operation with the given id.
func (r *OperationRegistry) Find(id string) (Operation, bool) {
	for _, op := range r.Operations {
		if op.ID == id {
			return op, true
		}
	}
	return Operation{}, false
}

// Default is the built-in catalog served at GET /.
func Default() *OperationRegistry {
	return &OperationRegistry{
		Version:     "1.0.0",
		LastUpdated: "2025-01-15",
		Operations: []Operation{
			{
				ID:          "health",
				DisplayName: "Health",
				Description: "Liveness, model load state and store counts",
				Category:    "infrastructure",
				Method:      "GET",
				Path:        "/health",
				ErrorCodes:  []string{},
				Tags:        []string{"ops"},
			},
			{
				ID:          "analyze_case",
				DisplayName: "Analyze Case",
				Description: "Score a welfare case, explain it and open it for officer approval",
				Category:    "risk",
				Method:      "POST",
				Path:        "/analyze_case",
				InputSchema: "case_input",
				ErrorCodes:  []string{"VALIDATION_FAILED", "MODEL_NOT_LOADED", "STORE_UNAVAILABLE"},
				Tags:        []string{"ai", "scoring"},
			},
			{
				ID:          "get_cases",
				DisplayName: "List Cases",
				Description: "Cases newest first, filtered by status and risk level",
				Category:    "cases",
				Method:      "GET",
				Path:        "/cases",
				ErrorCodes:  []string{"VALIDATION_FAILED"},
				Tags:        []string{"query"},
			},
			{
				ID:          "get_case",
				DisplayName: "Get Case",
				Description: "A single case by id",
				Category:    "cases",
				Method:      "GET",
				Path:        "/cases/:case_id",
				ErrorCodes:  []string{"CASE_NOT_FOUND"},
				Tags:        []string{"query"},
			},
			{
				ID:          "approve_case",
				DisplayName: "Approve Case",
				Description: "Record an officer APPROVE or REJECT decision on a pending case",
				Category:    "workflow",
				Method:      "POST",
				Path:        "/approve_case",
				InputSchema: "approval_request",
				ErrorCodes:  []string{"VALIDATION_FAILED", "INVALID_DECISION", "CASE_NOT_FOUND", "CASE_ALREADY_PROCESSED"},
				Tags:        []string{"human-in-the-loop"},
			},
			{
				ID:          "get_approvals",
				DisplayName: "Approval Audit Trail",
				Description: "Approval records newest first, optionally for one case",
				Category:    "workflow",
				Method:      "GET",
				Path:        "/approvals",
				ErrorCodes:  []string{"VALIDATION_FAILED"},
				Tags:        []string{"audit"},
			},
			{
				ID:          "get_pending_approvals",
				DisplayName: "Pending Approvals",
				Description: "Cases awaiting an officer decision in arrival order",
				Category:    "workflow",
				Method:      "GET",
				Path:        "/approvals/pending",
				ErrorCodes:  []string{},
				Tags:        []string{"human-in-the-loop"},
			},
			{
				ID:          "get_approval_history",
				DisplayName: "Approval History",
				Description: "Approval request log in arrival order, pending requests included",
				Category:    "workflow",
				Method:      "GET",
				Path:        "/approvals/history",
				ErrorCodes:  []string{"STORE_UNAVAILABLE"},
				Tags:        []string{"audit", "human-in-the-loop"},
			},
		},
	}
}
