// internal/models/approval.go
package models

import "time"

type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Status is the terminal case status a decision produces.
func (d Decision) Status() CaseStatus {
	if d == DecisionApprove {
		return StatusApproved
	}
	return StatusRejected
}

type DecisionAlignment string

const (
	AlignmentAligned  DecisionAlignment = "ALIGNED"
	AlignmentOverride DecisionAlignment = "OVERRIDE"
)

// ApprovalRecord is the immutable audit entry written when an officer decides a case.
type ApprovalRecord struct {
	ApprovalID        string            `json:"approval_id"`
	CaseID            string            `json:"case_id"`
	CitizenID         string            `json:"citizen_id"`
	OfficerID         string            `json:"officer_id"`
	Decision          Decision          `json:"decision"`
	Notes             string            `json:"officer_notes"`
	Timestamp         time.Time         `json:"timestamp"`
	AIRecommendation  RecommendedAction `json:"ai_recommendation"`
	AIRiskScore       float64           `json:"ai_risk_score"`
	DecisionAlignment DecisionAlignment `json:"decision_alignment"`
}

// HistoryEntry is one row of the approval log: the request as it was opened, its
// current status, and the officer decision once one exists.
type HistoryEntry struct {
	CaseID           string            `json:"case_id"`
	CitizenID        string            `json:"citizen_id"`
	AIRecommendation RecommendedAction `json:"ai_recommendation"`
	AIRiskScore      float64           `json:"ai_risk_score"`
	AIExplanation    string            `json:"ai_explanation"`
	Status           CaseStatus        `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`

	ApprovalID        string            `json:"approval_id,omitempty"`
	OfficerID         string            `json:"officer_id,omitempty"`
	Decision          Decision          `json:"decision,omitempty"`
	OfficerNotes      string            `json:"officer_notes,omitempty"`
	DecidedAt         *time.Time        `json:"decided_at,omitempty"`
	DecisionAlignment DecisionAlignment `json:"decision_alignment,omitempty"`
}
