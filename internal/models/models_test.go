package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRiskLevelForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  RiskLevel
	}{
		{0, RiskLow},
		{29.99, RiskLow},
		{30, RiskMedium},
		{59.99, RiskMedium},
		{60, RiskHigh},
		{100, RiskHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskLevelForScore(tt.score), tt.score)
	}
}

func TestDecisionStatus(t *testing.T) {
	assert.Equal(t, StatusApproved, DecisionApprove.Status())
	assert.Equal(t, StatusRejected, DecisionReject.Status())
	assert.False(t, Decision("approve").Valid())
	assert.True(t, StatusApproved.IsTerminal())
	assert.False(t, StatusPendingApproval.IsTerminal())
	assert.False(t, CaseStatus("APPROVE").Valid())
}

func TestCaseClone(t *testing.T) {
	decided := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Case{
		CaseID:    "CASE_1",
		Reasons:   map[string]FeatureReason{"income": {Value: 1, Importance: 0.5}},
		DecidedAt: &decided,
	}
	cp := c.Clone()
	cp.Reasons["income"] = FeatureReason{Value: 2}
	*cp.DecidedAt = decided.Add(time.Hour)

	assert.Equal(t, 1.0, c.Reasons["income"].Value)
	assert.Equal(t, decided, *c.DecidedAt)
	assert.Nil(t, (*Case)(nil).Clone())
}
