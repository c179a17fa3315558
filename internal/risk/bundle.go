// internal/risk/bundle.go
package risk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"welfare-caseworker/internal/common/validation"
	"welfare-caseworker/internal/models"
)

const BundleVersion = "1"

// Feature names in model input order.
const (
	FeatureIncome                   = "income"
	FeatureLastDocumentUpdateMonths = "last_document_update_months"
	FeatureSchemeTypeEncoded        = "scheme_type_encoded"
	FeaturePastBenefitInterruptions = "past_benefit_interruptions"
)

var FeatureNames = []string{
	FeatureIncome,
	FeatureLastDocumentUpdateMonths,
	FeatureSchemeTypeEncoded,
	FeaturePastBenefitInterruptions,
}

// Node is one entry of a flattened decision tree. Leaves have Feature == -1;
// internal nodes send x[Feature] <= Threshold to Left and everything else to Right.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

func (n Node) IsLeaf() bool { return n.Feature < 0 }

type Tree struct {
	Nodes []Node `json:"nodes"`
}

// leaf walks from the root to the leaf selected by x.
func (t Tree) leaf(x []float64) []float64 {
	i := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return nil
}

type Forest struct {
	Trees []Tree `json:"trees"`
}

// Metrics are hold-out scores recorded at training time.
type Metrics struct {
	Accuracy     float64 `json:"accuracy"`
	RMSE         float64 `json:"rmse"`
	TrainSamples int     `json:"train_samples"`
	TestSamples  int     `json:"test_samples"`
}

// Bundle is the serialized model: a classifier forest for the risk level, a
// regressor forest for the score, and the scheme encoding fixed at training time.
type Bundle struct {
	Version            string         `json:"version"`
	FeatureNames       []string       `json:"feature_names"`
	SchemeEncoding     map[string]int `json:"scheme_encoding"`
	Classes            []string       `json:"classes"`
	Classifier         Forest         `json:"classifier"`
	Regressor          Forest         `json:"regressor"`
	FeatureImportances []float64      `json:"feature_importances"`
	Metrics            *Metrics       `json:"metrics,omitempty"`
	TrainedAt          time.Time      `json:"trained_at"`
}

// LoadBundle reads, schema-checks and structurally validates a bundle file.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model bundle: %w", err)
	}
	if err := validation.ValidateModelBundle(data); err != nil {
		return nil, fmt.Errorf("model bundle schema: %w", err)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode model bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Save writes the bundle as indented JSON, creating parent directories.
func (b *Bundle) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create model directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model bundle: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the invariants inference relies on.
func (b *Bundle) Validate() error {
	if len(b.FeatureNames) != len(FeatureNames) {
		return fmt.Errorf("%w: expected %d features, got %d", ErrInvalidBundle, len(FeatureNames), len(b.FeatureNames))
	}
	for i, name := range FeatureNames {
		if b.FeatureNames[i] != name {
			return fmt.Errorf("%w: feature %d is %q, expected %q", ErrInvalidBundle, i, b.FeatureNames[i], name)
		}
	}
	for _, scheme := range models.SchemeTypes {
		if _, ok := b.SchemeEncoding[string(scheme)]; !ok {
			return fmt.Errorf("%w: scheme_encoding missing %q", ErrInvalidBundle, scheme)
		}
	}
	if len(b.Classes) == 0 {
		return fmt.Errorf("%w: no classes", ErrInvalidBundle)
	}
	for _, class := range b.Classes {
		if !models.RiskLevel(class).Valid() {
			return fmt.Errorf("%w: unknown class %q", ErrInvalidBundle, class)
		}
	}
	if len(b.FeatureImportances) != len(FeatureNames) {
		return fmt.Errorf("%w: expected %d feature importances, got %d", ErrInvalidBundle, len(FeatureNames), len(b.FeatureImportances))
	}
	if err := validateForest("classifier", b.Classifier, len(b.Classes)); err != nil {
		return err
	}
	return validateForest("regressor", b.Regressor, 1)
}

func validateForest(name string, f Forest, valueLen int) error {
	if len(f.Trees) == 0 {
		return fmt.Errorf("%w: %s has no trees", ErrInvalidBundle, name)
	}
	for ti, tree := range f.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("%w: %s tree %d is empty", ErrInvalidBundle, name, ti)
		}
		for ni, n := range tree.Nodes {
			if n.IsLeaf() {
				if len(n.Value) != valueLen {
					return fmt.Errorf("%w: %s tree %d leaf %d has %d values, expected %d", ErrInvalidBundle, name, ti, ni, len(n.Value), valueLen)
				}
				continue
			}
			if n.Feature >= len(FeatureNames) {
				return fmt.Errorf("%w: %s tree %d node %d splits on feature %d", ErrInvalidBundle, name, ti, ni, n.Feature)
			}
			if n.Left <= ni || n.Right <= ni || n.Left >= len(tree.Nodes) || n.Right >= len(tree.Nodes) {
				return fmt.Errorf("%w: %s tree %d node %d has invalid children", ErrInvalidBundle, name, ti, ni)
			}
		}
	}
	return nil
}

// Encode maps a case onto the model's feature vector using the stored scheme encoding.
func (b *Bundle) Encode(c models.CitizenCase) ([]float64, error) {
	idx, ok := b.SchemeEncoding[string(c.SchemeType)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, c.SchemeType)
	}
	return featureVector(c.Income, c.LastDocumentUpdateMonths, idx, c.PastBenefitInterruptions), nil
}

func featureVector(income, months float64, schemeIdx, interruptions int) []float64 {
	return []float64{income, months, float64(schemeIdx), float64(interruptions)}
}

// classify averages class probabilities across trees; ties go to the lowest class index.
func (b *Bundle) classify(x []float64) (string, []float64) {
	probs := make([]float64, len(b.Classes))
	for _, tree := range b.Classifier.Trees {
		for i, p := range tree.leaf(x) {
			probs[i] += p
		}
	}
	best := 0
	for i := range probs {
		probs[i] /= float64(len(b.Classifier.Trees))
		if probs[i] > probs[best] {
			best = i
		}
	}
	return b.Classes[best], probs
}

func (b *Bundle) regress(x []float64) float64 {
	var sum float64
	for _, tree := range b.Regressor.Trees {
		if v := tree.leaf(x); len(v) > 0 {
			sum += v[0]
		}
	}
	return sum / float64(len(b.Regressor.Trees))
}
