// internal/explain/templates.go
package explain

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"welfare-caseworker/internal/models"
)

const SystemPrompt = "You are a helpful assistant explaining welfare case decisions in simple, clear language."

var numberPrinter = message.NewPrinter(language.English)

// RecommendedAction maps a risk level to the officer action and its description.
func RecommendedAction(level models.RiskLevel) (models.RecommendedAction, string) {
	switch level {
	case models.RiskHigh:
		return models.ActionUrgentReview, "Case requires immediate officer review and citizen contact"
	case models.RiskMedium:
		return models.ActionStandardReview, "Case requires standard officer review and documentation update request"
	default:
		return models.ActionRoutineReview, "Case can proceed with routine officer verification"
	}
}

// FallbackExplanation is keyed only on the score; the level is not consulted.
func FallbackExplanation(score float64) string {
	n := int(score)
	switch {
	case score >= 60:
		return fmt.Sprintf("Your welfare case shows a high risk score (%d). Please update your documentation within 30 days. A case officer will review your file and contact you within 15 business days.", n)
	case score >= 30:
		return fmt.Sprintf("Your case shows a moderate risk score (%d). Please verify your income information is up to date. A case officer will review your application within 10 business days.", n)
	default:
		return fmt.Sprintf("Your case shows a low risk score (%d). Your application will proceed to final review. You should receive a decision within 5-7 business days.", n)
	}
}

// BuildPrompt renders the user message sent to the text-generation backend.
func BuildPrompt(in Input) string {
	var parts []string

	parts = append(parts, "Generate a clear, empathetic explanation for a welfare case decision.")
	parts = append(parts, "")
	parts = append(parts, fmt.Sprintf("Risk Score: %.1f/100", in.RiskScore))
	parts = append(parts, fmt.Sprintf("Risk Level: %s", strings.ToUpper(string(in.RiskLevel))))
	parts = append(parts, numberPrinter.Sprintf("Income: ₹%.2f", in.Citizen.Income))
	parts = append(parts, fmt.Sprintf("Last Document Update: %.1f months ago", in.Citizen.LastDocumentUpdateMonths))
	parts = append(parts, fmt.Sprintf("Scheme Type: %s", in.Citizen.SchemeType))
	parts = append(parts, fmt.Sprintf("Past Interruptions: %d", in.Citizen.PastBenefitInterruptions))
	parts = append(parts, "")
	parts = append(parts, "Write a brief, citizen-friendly explanation (2-3 sentences) that:")
	parts = append(parts, "1. Explains what the risk score means in simple terms")
	parts = append(parts, "2. Provides clear next steps")
	parts = append(parts, "3. Uses respectful, helpful tone")
	parts = append(parts, "Avoid technical jargon.")

	return strings.Join(parts, "\n")
}
