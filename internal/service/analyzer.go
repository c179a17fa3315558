// internal/service/analyzer.go
package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"welfare-caseworker/internal/common/logger"
	"welfare-caseworker/internal/common/metrics"
	"welfare-caseworker/internal/common/observability"
	"welfare-caseworker/internal/explain"
	"welfare-caseworker/internal/models"
	"welfare-caseworker/internal/risk"
	"welfare-caseworker/internal/workflow"
)

// Scorer is the model backend the analyzer depends on.
type Scorer interface {
	Score(c models.CitizenCase) (*risk.Assessment, error)
	Loaded() bool
}

// Explainer renders citizen-facing text; it never fails.
type Explainer interface {
	Render(ctx context.Context, in explain.Input) explain.Explanation
}

// Analyzer runs a case through the scorer and explainer and opens it for approval.
type Analyzer struct {
	scorer    Scorer
	explainer Explainer
	workflow  *workflow.Workflow
	obs       *observability.Observability
	logger    logger.Logger
	now       func() time.Time
}

func NewAnalyzer(scorer Scorer, explainer Explainer, wf *workflow.Workflow, obs *observability.Observability, log logger.Logger) *Analyzer {
	return &Analyzer{
		scorer:    scorer,
		explainer: explainer,
		workflow:  wf,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"component": "case-analyzer"}),
		now:       time.Now,
	}
}

// NewCaseID returns CASE_<yyyymmdd>_<hhmmss>_<8 hex>.
func NewCaseID(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("CASE_%s_%s", t.Format("20060102_150405"), suffix)
}

// Analyze scores, explains and stores one validated case.
func (a *Analyzer) Analyze(ctx context.Context, citizen models.CitizenCase) (*models.Case, error) {
	start := time.Now()
	ctx, span := a.obs.StartSpan(ctx, "analyze_case", attribute.String("citizen_id", citizen.CitizenID))
	defer span.End()

	if !a.scorer.Loaded() {
		span.SetStatus(codes.Error, "model not loaded")
		return nil, risk.ErrModelNotLoaded
	}

	assessment, err := a.scorer.Score(citizen)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scoring failed")
		return nil, fmt.Errorf("score case: %w", err)
	}

	explanation := a.explainer.Render(ctx, explain.Input{
		RiskScore: assessment.RiskScore,
		RiskLevel: assessment.RiskLevel,
		Reasons:   assessment.Reasons,
		Citizen:   citizen,
	})

	c, err := a.workflow.CreateApprovalRequest(ctx, workflow.CreateRequest{
		CaseID:            NewCaseID(a.now()),
		Citizen:           citizen,
		RiskLevel:         assessment.RiskLevel,
		Reasons:           assessment.Reasons,
		AIRecommendation:  explanation.RecommendedAction,
		AIRiskScore:       roundTo(assessment.RiskScore, 2),
		AIExplanation:     explanation.Text,
		ExplanationSource: explanation.Source,
		ActionDescription: explanation.ActionDescription,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("case_id", c.CaseID),
		attribute.String("risk_level", string(c.RiskLevel)),
		attribute.Float64("risk_score", c.RiskScore),
	)
	metrics.CasesAnalyzed.WithLabelValues(string(c.RiskLevel)).Inc()
	a.obs.RecordAnalysis(ctx, time.Since(start), string(c.RiskLevel), c.ExplanationSource)

	a.logger.Info("case analyzed", map[string]interface{}{
		"caseId":            c.CaseID,
		"riskLevel":         string(c.RiskLevel),
		"riskScore":         c.RiskScore,
		"recommendedAction": string(c.RecommendedAction),
		"explanationSource": c.ExplanationSource,
		"durationMs":        time.Since(start).Milliseconds(),
	})
	return c, nil
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
