// internal/common/database/elasticsearch.go
package database

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"welfare-caseworker/internal/common/config"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticsearchClient wraps the client used by the approval audit index.
type ElasticsearchClient struct {
	Client *elasticsearch.Client
}

func NewElasticsearch(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
	}

	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &ElasticsearchClient{Client: es}, nil
}

// Ping tests the Elasticsearch connection
func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := c.Client.Ping(
		c.Client.Ping.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}

	return nil
}

// approvalMapping keeps identifiers and enums as keywords so the audit index can be
// aggregated by officer, decision and alignment.
const approvalMapping = `{
  "mappings": {
    "properties": {
      "approval_id":        {"type": "keyword"},
      "case_id":            {"type": "keyword"},
      "citizen_id":         {"type": "keyword"},
      "officer_id":         {"type": "keyword"},
      "decision":           {"type": "keyword"},
      "officer_notes":      {"type": "text"},
      "timestamp":          {"type": "date"},
      "ai_recommendation":  {"type": "keyword"},
      "ai_risk_score":      {"type": "float"},
      "decision_alignment": {"type": "keyword"}
    }
  }
}`

// EnsureIndex creates the approvals index with its mapping unless it already exists.
func (c *ElasticsearchClient) EnsureIndex(ctx context.Context, index string) error {
	exists, err := c.Client.Indices.Exists([]string{index}, c.Client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch index check failed: %w", err)
	}
	exists.Body.Close()

	switch exists.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("elasticsearch index check error: %s", exists.Status())
	}

	res, err := c.Client.Indices.Create(index,
		c.Client.Indices.Create.WithContext(ctx),
		c.Client.Indices.Create.WithBody(strings.NewReader(approvalMapping)),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch create index failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// Another replica may have created it between the check and the create.
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("elasticsearch create index error: %s: %s", res.Status(), strings.TrimSpace(string(body)))
	}
	return nil
}
