// internal/risk/dataset.go
package risk

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"

	"welfare-caseworker/internal/models"
)

// Sample is one labelled row of the synthetic welfare dataset.
type Sample struct {
	CitizenID                string
	Income                   float64
	LastDocumentUpdateMonths float64
	SchemeType               models.SchemeType
	PastBenefitInterruptions int
	RiskScore                float64
	RiskLevel                models.RiskLevel
}

var csvHeader = []string{
	"citizen_id",
	"income",
	"last_document_update_months",
	"scheme_type",
	"past_benefit_interruptions",
	"risk_score",
	"risk_level",
}

// schemeWeights are the draw probabilities for pension, subsidy and ration.
var schemeWeights = []float64{0.40, 0.35, 0.25}

// coverageShare of the rows are drawn uniformly over the feature ranges; the
// population draw alone almost never reaches the income > 30000 rule.
const coverageShare = 0.3

// GenerateDataset draws n synthetic cases and labels them with the reference scoring rule.
func GenerateDataset(n int, seed int64) []Sample {
	rng := rand.New(rand.NewSource(seed))
	samples := make([]Sample, 0, n)

	for i := 1; i <= n; i++ {
		var income, months float64
		var interruptions int
		if rng.Float64() < coverageShare {
			income = 5000 + rng.Float64()*55000
			months = rng.Float64() * 36
			interruptions = rng.Intn(6)
		} else {
			income = math.Max(5000, rng.NormFloat64()*5000+15000)
			months = math.Min(rng.ExpFloat64()*6, 36)
			interruptions = poisson(rng, 0.5)
			if interruptions > 5 {
				interruptions = 5
			}
		}
		scheme := pickScheme(rng)

		score := ReferenceScore(income, months, scheme, interruptions) + rng.NormFloat64()*10
		score = clamp(score, 0, 100)

		samples = append(samples, Sample{
			CitizenID:                fmt.Sprintf("CIT_%06d", i),
			Income:                   round(income, 2),
			LastDocumentUpdateMonths: round(months, 1),
			SchemeType:               scheme,
			PastBenefitInterruptions: interruptions,
			RiskScore:                round(score, 2),
			RiskLevel:                models.RiskLevelForScore(score),
		})
	}
	return samples
}

// ReferenceScore is the noise-free labelling rule the synthetic dataset is built on.
func ReferenceScore(income, months float64, scheme models.SchemeType, interruptions int) float64 {
	var score float64
	switch {
	case income > 30000:
		score += 30
	case income < 8000:
		score += 20
	}
	switch {
	case months > 12:
		score += 25
	case months > 6:
		score += 15
	}
	score += float64(interruptions) * 8
	if scheme == models.SchemePension && income > 25000 {
		score += 15
	}
	return score
}

func pickScheme(rng *rand.Rand) models.SchemeType {
	r := rng.Float64()
	var acc float64
	for i, w := range schemeWeights {
		acc += w
		if r < acc {
			return models.SchemeTypes[i]
		}
	}
	return models.SchemeTypes[len(models.SchemeTypes)-1]
}

// poisson uses Knuth's multiplication method, adequate for small lambda.
func poisson(rng *rand.Rand, lambda float64) int {
	limit := math.Exp(-lambda)
	k := 0
	p := rng.Float64()
	for p > limit {
		k++
		p *= rng.Float64()
	}
	return k
}

func round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}

// WriteCSV writes samples with a header row.
func WriteCSV(w io.Writer, samples []Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range samples {
		record := []string{
			s.CitizenID,
			strconv.FormatFloat(s.Income, 'f', 2, 64),
			strconv.FormatFloat(s.LastDocumentUpdateMonths, 'f', 1, 64),
			string(s.SchemeType),
			strconv.Itoa(s.PastBenefitInterruptions),
			strconv.FormatFloat(s.RiskScore, 'f', 2, 64),
			string(s.RiskLevel),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a dataset written by WriteCSV. Columns are matched by header name.
func ReadCSV(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range csvHeader {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var samples []Sample
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		s, err := parseRecord(rec, col)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func parseRecord(rec []string, col map[string]int) (Sample, error) {
	var s Sample
	var err error

	s.CitizenID = rec[col["citizen_id"]]
	if s.Income, err = strconv.ParseFloat(rec[col["income"]], 64); err != nil {
		return s, fmt.Errorf("income: %w", err)
	}
	if s.LastDocumentUpdateMonths, err = strconv.ParseFloat(rec[col["last_document_update_months"]], 64); err != nil {
		return s, fmt.Errorf("last_document_update_months: %w", err)
	}
	s.SchemeType = models.SchemeType(rec[col["scheme_type"]])
	if !s.SchemeType.Valid() {
		return s, fmt.Errorf("scheme_type: unknown value %q", s.SchemeType)
	}
	if s.PastBenefitInterruptions, err = strconv.Atoi(rec[col["past_benefit_interruptions"]]); err != nil {
		return s, fmt.Errorf("past_benefit_interruptions: %w", err)
	}
	if s.RiskScore, err = strconv.ParseFloat(rec[col["risk_score"]], 64); err != nil {
		return s, fmt.Errorf("risk_score: %w", err)
	}
	s.RiskLevel = models.RiskLevel(rec[col["risk_level"]])
	if !s.RiskLevel.Valid() {
		return s, fmt.Errorf("risk_level: unknown value %q", s.RiskLevel)
	}
	return s, nil
}
