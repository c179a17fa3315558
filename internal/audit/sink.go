// internal/audit/sink.go
package audit

import (
	"context"
	"errors"
	"fmt"

	"welfare-caseworker/internal/common/logger"
	"welfare-caseworker/internal/common/metrics"
	"welfare-caseworker/internal/models"
)

// Sink receives every committed approval record. Sinks run after the store commit, so
// a failing sink never undoes a decision.
type Sink interface {
	Name() string
	Record(ctx context.Context, rec *models.ApprovalRecord) error
}

// LogSink writes each decision as a structured audit log entry.
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log.WithFields(map[string]interface{}{"component": "audit"})}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Record(_ context.Context, rec *models.ApprovalRecord) error {
	s.logger.Info("approval recorded", map[string]interface{}{
		"approvalId":        rec.ApprovalID,
		"caseId":            rec.CaseID,
		"citizenId":         rec.CitizenID,
		"officerId":         rec.OfficerID,
		"decision":          string(rec.Decision),
		"aiRecommendation":  string(rec.AIRecommendation),
		"aiRiskScore":       rec.AIRiskScore,
		"decisionAlignment": string(rec.DecisionAlignment),
		"timestamp":         rec.Timestamp,
	})
	return nil
}

// Multi fans a record out to every sink. Each failure is logged and counted; the
// joined error is returned once all sinks have run.
type Multi struct {
	sinks  []Sink
	logger logger.Logger
}

func NewMulti(log logger.Logger, sinks ...Sink) *Multi {
	return &Multi{
		sinks:  sinks,
		logger: log.WithFields(map[string]interface{}{"component": "audit"}),
	}
}

func (m *Multi) Name() string { return "multi" }

// Sinks returns the names of the configured sinks.
func (m *Multi) Sinks() []string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return names
}

func (m *Multi) Record(ctx context.Context, rec *models.ApprovalRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, rec); err != nil {
			metrics.AuditSinkFailures.WithLabelValues(s.Name()).Inc()
			m.logger.Error("audit sink failed", map[string]interface{}{
				"sink":       s.Name(),
				"approvalId": rec.ApprovalID,
				"caseId":     rec.CaseID,
				"error":      err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
