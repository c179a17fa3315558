// pkg/registry/schema.go
package registry

// OperationRegistry describes the operations the caseworker API exposes.
type OperationRegistry struct {
	Version     string      `json:"version"`
	LastUpdated string      `json:"lastUpdated"`
	Operations  []Operation `json:"operations"`
}

type Operation struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Method      string   `json:"method"`
	Path        string   `json:"path"`
	InputSchema string   `json:"inputSchema,omitempty"`
	ErrorCodes  []string `json:"errorCodes"`
	Tags        []string `json:"tags"`
}
