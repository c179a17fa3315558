// internal/audit/elasticsearch.go
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"

	"welfare-caseworker/internal/models"
)

const DefaultIndex = "caseworker-approvals"

// ElasticsearchSink indexes one document per approval, keyed by approval_id so a
// replayed record overwrites rather than duplicates.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchSink(client *elasticsearch.Client, index string) *ElasticsearchSink {
	if index == "" {
		index = DefaultIndex
	}
	return &ElasticsearchSink{client: client, index: index}
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

func (s *ElasticsearchSink) Record(ctx context.Context, rec *models.ApprovalRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal approval: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(rec.ApprovalID),
	)
	if err != nil {
		return fmt.Errorf("index approval: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("index approval: %s: %s", res.Status(), bytes.TrimSpace(raw))
	}
	return nil
}
