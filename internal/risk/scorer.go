// internal/risk/scorer.go
package risk

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"welfare-caseworker/internal/common/logger"
	"welfare-caseworker/internal/models"
)

var (
	ErrModelNotLoaded = errors.New("MODEL_NOT_LOADED")
	ErrInvalidBundle  = errors.New("INVALID_MODEL_BUNDLE")
	ErrUnknownScheme  = errors.New("UNKNOWN_SCHEME_TYPE")
)

// Assessment is the scorer's output for one case.
type Assessment struct {
	RiskScore     float64                         `json:"risk_score"`
	RiskLevel     models.RiskLevel                `json:"risk_level"`
	Probabilities map[string]float64              `json:"probabilities"`
	Reasons       map[string]models.FeatureReason `json:"reasons"`
}

// Scorer runs the classifier and regressor from a loaded bundle. It is safe for
// concurrent use; Load may swap the bundle while requests are in flight.
type Scorer struct {
	mu     sync.RWMutex
	bundle *Bundle
	logger logger.Logger
}

func NewScorer(log logger.Logger) *Scorer {
	return &Scorer{
		logger: log.WithFields(map[string]interface{}{"component": "risk-scorer"}),
	}
}

// Load reads the bundle at path and makes it the active model.
func (s *Scorer) Load(path string) error {
	b, err := LoadBundle(path)
	if err != nil {
		return err
	}
	s.SetBundle(b)

	fields := map[string]interface{}{
		"path":            path,
		"classifierTrees": len(b.Classifier.Trees),
		"regressorTrees":  len(b.Regressor.Trees),
		"classes":         b.Classes,
	}
	if b.Metrics != nil {
		fields["accuracy"] = b.Metrics.Accuracy
		fields["rmse"] = b.Metrics.RMSE
	}
	s.logger.Info("risk model loaded", fields)
	return nil
}

func (s *Scorer) SetBundle(b *Bundle) {
	s.mu.Lock()
	s.bundle = b
	s.mu.Unlock()
}

func (s *Scorer) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundle != nil
}

// Score regresses the case's score clamped to [0,100] and buckets it into a level.
// The classifier only contributes the class probabilities; reasons carry the global
// feature importances.
func (s *Scorer) Score(c models.CitizenCase) (*Assessment, error) {
	s.mu.RLock()
	b := s.bundle
	s.mu.RUnlock()
	if b == nil {
		return nil, ErrModelNotLoaded
	}

	x, err := b.Encode(c)
	if err != nil {
		return nil, err
	}

	predicted, probs := b.classify(x)
	score := clamp(b.regress(x), 0, 100)
	level := models.RiskLevelForScore(score)
	if string(level) != predicted {
		s.logger.Debug("classifier disagrees with score bucket", map[string]interface{}{
			"citizenId":  c.CitizenID,
			"riskScore":  score,
			"classifier": predicted,
		})
	}

	probabilities := make(map[string]float64, len(probs))
	for i, p := range probs {
		probabilities[b.Classes[i]] = p
	}

	reasons := make(map[string]models.FeatureReason, len(b.FeatureNames))
	for i, name := range b.FeatureNames {
		reasons[name] = models.FeatureReason{
			Value:      x[i],
			Importance: b.FeatureImportances[i],
		}
	}

	s.logger.Debug("case scored", map[string]interface{}{
		"citizenId": c.CitizenID,
		"riskScore": score,
		"riskLevel": level,
	})

	return &Assessment{
		RiskScore:     score,
		RiskLevel:     level,
		Probabilities: probabilities,
		Reasons:       reasons,
	}, nil
}

// Info summarizes the active bundle for the health endpoint.
func (s *Scorer) Info() (map[string]interface{}, error) {
	s.mu.RLock()
	b := s.bundle
	s.mu.RUnlock()
	if b == nil {
		return nil, ErrModelNotLoaded
	}
	info := map[string]interface{}{
		"version":          b.Version,
		"classifier_trees": len(b.Classifier.Trees),
		"regressor_trees":  len(b.Regressor.Trees),
		"trained_at":       b.TrainedAt,
	}
	if b.Metrics != nil {
		info["accuracy"] = b.Metrics.Accuracy
		info["rmse"] = b.Metrics.RMSE
	}
	return info, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func (a *Assessment) String() string {
	return fmt.Sprintf("%s (%.2f)", a.RiskLevel, a.RiskScore)
}
