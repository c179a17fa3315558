// internal/models/case.go
package models

import "time"

type SchemeType string

const (
	SchemePension SchemeType = "pension"
	SchemeSubsidy SchemeType = "subsidy"
	SchemeRation  SchemeType = "ration"
)

// SchemeTypes lists the accepted scheme types in declaration order.
var SchemeTypes = []SchemeType{SchemePension, SchemeSubsidy, SchemeRation}

func (s SchemeType) Valid() bool {
	switch s {
	case SchemePension, SchemeSubsidy, SchemeRation:
		return true
	}
	return false
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// RiskLevelForScore buckets a 0-100 score: >=60 high, >=30 medium, else low.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 60:
		return RiskHigh
	case score >= 30:
		return RiskMedium
	default:
		return RiskLow
	}
}

type CaseStatus string

const (
	StatusPendingApproval CaseStatus = "PENDING_APPROVAL"
	StatusApproved        CaseStatus = "APPROVED"
	StatusRejected        CaseStatus = "REJECTED"
)

// IsTerminal reports whether the case has left PENDING_APPROVAL.
func (s CaseStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s CaseStatus) Valid() bool {
	return s == StatusPendingApproval || s.IsTerminal()
}

type RecommendedAction string

const (
	ActionUrgentReview   RecommendedAction = "URGENT_REVIEW"
	ActionStandardReview RecommendedAction = "STANDARD_REVIEW"
	ActionRoutineReview  RecommendedAction = "ROUTINE_REVIEW"
)

// CitizenCase holds the raw attributes submitted for scoring.
type CitizenCase struct {
	CitizenID                string     `json:"citizen_id"`
	Income                   float64    `json:"income"`
	LastDocumentUpdateMonths float64    `json:"last_document_update_months"`
	SchemeType               SchemeType `json:"scheme_type"`
	PastBenefitInterruptions int        `json:"past_benefit_interruptions"`
}

// FeatureReason pairs a feature's value for this case with its global importance.
type FeatureReason struct {
	Value      float64 `json:"value"`
	Importance float64 `json:"importance"`
}

// Case is an analyzed case. It is created once with status PENDING_APPROVAL and
// mutated exactly once by an officer decision.
type Case struct {
	CaseID            string                   `json:"case_id"`
	Citizen           CitizenCase              `json:"citizen_data"`
	RiskScore         float64                  `json:"risk_score"`
	RiskLevel         RiskLevel                `json:"risk_level"`
	Reasons           map[string]FeatureReason `json:"reasons"`
	Explanation       string                   `json:"explanation"`
	ExplanationSource string                   `json:"explanation_source,omitempty"`
	RecommendedAction RecommendedAction        `json:"recommended_action"`
	ActionDescription string                   `json:"action_description,omitempty"`
	Status            CaseStatus               `json:"status"`
	CreatedAt         time.Time                `json:"created_at"`

	OfficerID    string     `json:"officer_id,omitempty"`
	OfficerNotes string     `json:"officer_notes,omitempty"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	out := *c
	if c.Reasons != nil {
		out.Reasons = make(map[string]FeatureReason, len(c.Reasons))
		for k, v := range c.Reasons {
			out.Reasons[k] = v
		}
	}
	if c.DecidedAt != nil {
		t := *c.DecidedAt
		out.DecidedAt = &t
	}
	return &out
}
