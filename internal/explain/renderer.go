// internal/explain/renderer.go
package explain

import (
	"context"
	"errors"
	"strings"
	"time"

	"welfare-caseworker/internal/common/logger"
	"welfare-caseworker/internal/common/metrics"
	"welfare-caseworker/internal/models"
)

const SourceFallback = "fallback"

var (
	ErrGenerationFailed  = errors.New("TEXT_GENERATION_FAILED")
	ErrGenerationTimeout = errors.New("TEXT_GENERATION_TIMEOUT")
	ErrEmptyResponse     = errors.New("EMPTY_RESPONSE")
)

// TextGenerator is a hosted text-generation backend.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Provider() string
}

// Input carries everything the prompt and fallback need.
type Input struct {
	RiskScore float64
	RiskLevel models.RiskLevel
	Reasons   map[string]models.FeatureReason
	Citizen   models.CitizenCase
}

type Explanation struct {
	Text              string                   `json:"explanation"`
	Source            string                   `json:"explanation_source"`
	RecommendedAction models.RecommendedAction `json:"recommended_action"`
	ActionDescription string                   `json:"action_description"`
}

// Renderer produces citizen-facing text. Render never fails: any generator error,
// timeout or empty reply degrades to the deterministic template.
type Renderer struct {
	generator TextGenerator
	timeout   time.Duration
	logger    logger.Logger
}

// NewRenderer accepts a nil generator, in which case every explanation is templated.
func NewRenderer(generator TextGenerator, timeout time.Duration, log logger.Logger) *Renderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Renderer{
		generator: generator,
		timeout:   timeout,
		logger:    log.WithFields(map[string]interface{}{"component": "explanation-renderer"}),
	}
}

func (r *Renderer) Configured() bool {
	return r.generator != nil
}

// Provider names the active backend, or "fallback" when none is configured.
func (r *Renderer) Provider() string {
	if r.generator == nil {
		return SourceFallback
	}
	return r.generator.Provider()
}

func (r *Renderer) Render(ctx context.Context, in Input) Explanation {
	action, description := RecommendedAction(in.RiskLevel)
	out := Explanation{
		RecommendedAction: action,
		ActionDescription: description,
	}

	if r.generator != nil {
		text, err := r.generate(ctx, in)
		if err == nil {
			out.Text = text
			out.Source = r.generator.Provider()
			metrics.ExplanationsTotal.WithLabelValues(out.Source).Inc()
			return out
		}
		metrics.TextGenerationFailures.WithLabelValues(r.generator.Provider()).Inc()
		r.logger.Warn("text generation failed, using fallback explanation", map[string]interface{}{
			"provider":  r.generator.Provider(),
			"citizenId": in.Citizen.CitizenID,
			"error":     err.Error(),
		})
	}

	out.Text = FallbackExplanation(in.RiskScore)
	out.Source = SourceFallback
	metrics.ExplanationsTotal.WithLabelValues(out.Source).Inc()
	return out
}

func (r *Renderer) generate(ctx context.Context, in Input) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	text, err := r.generator.Generate(ctx, BuildPrompt(in))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrGenerationTimeout
		}
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
