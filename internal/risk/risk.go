// Package risk turns a site photo's hazard flags into a bounded multiplier
// for the safety score.
package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/yourorg/kysafety/internal/errs"
)

const (
	NeutralFactor = 1.0
	MaxFactor     = 1.5
)

// Flag weights added to the neutral factor.
const (
	weightOpenEdges                = 0.10
	weightHeavyEquipmentNearPeople = 0.15
	weightThirdPartyVisible        = 0.15
	weightSafetyBarrierMissing     = 0.10
	weightHeightDifferenceDetected = 0.10
)

// ErrAnalysisUnavailable means the analyzer could not be reached or its reply
// could not be read. Callers decide whether to fall back; Assess never does.
var ErrAnalysisUnavailable = errs.New(errs.KindUpstream, "ANALYSIS_UNAVAILABLE", "risk analysis unavailable")

// ErrAnalyzerNotConfigured means no analyzer credential is set.
var ErrAnalyzerNotConfigured = errs.New(errs.KindConfiguration, "ANALYZER_NOT_CONFIGURED", "risk analyzer credential is not configured")

// Flags are the hazard conditions detected in one photo.
type Flags struct {
	OpenEdges                bool `json:"openEdges"`
	HeavyEquipmentNearPeople bool `json:"heavyEquipmentNearPeople"`
	ThirdPartyVisible        bool `json:"thirdPartyVisible"`
	SafetyBarrierMissing     bool `json:"safetyBarrierMissing"`
	HeightDifferenceDetected bool `json:"heightDifferenceDetected"`
}

// Analysis is the result for one photo. It is not persisted.
type Analysis struct {
	ImageFactor float64 `json:"imageFactor"`
	Details     Flags   `json:"details"`
}

// Analyzer extracts hazard flags from the photo at imageURL.
type Analyzer interface {
	Analyze(ctx context.Context, imageURL string) (Flags, error)
}

// ComputeFactor returns the multiplier for flags. A nil flags value means no
// photo was supplied and yields the neutral factor.
func ComputeFactor(flags *Flags) float64 {
	if flags == nil {
		return NeutralFactor
	}
	factor := NeutralFactor
	if flags.OpenEdges {
		factor += weightOpenEdges
	}
	if flags.HeavyEquipmentNearPeople {
		factor += weightHeavyEquipmentNearPeople
	}
	if flags.ThirdPartyVisible {
		factor += weightThirdPartyVisible
	}
	if flags.SafetyBarrierMissing {
		factor += weightSafetyBarrierMissing
	}
	if flags.HeightDifferenceDetected {
		factor += weightHeightDifferenceDetected
	}
	factor = math.Min(factor, MaxFactor)
	return math.Round(factor*100) / 100
}

// Assess analyzes the photo at imageURL. An empty URL returns the neutral
// analysis without calling the analyzer.
func Assess(ctx context.Context, analyzer Analyzer, imageURL string) (Analysis, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return Analysis{ImageFactor: NeutralFactor}, nil
	}
	if analyzer == nil {
		return Analysis{}, ErrAnalyzerNotConfigured
	}
	flags, err := analyzer.Analyze(ctx, imageURL)
	if err != nil {
		if errors.Is(err, ErrAnalysisUnavailable) || errs.KindOf(err) == errs.KindConfiguration {
			return Analysis{}, err
		}
		return Analysis{}, unavailable(err)
	}
	return Analysis{ImageFactor: ComputeFactor(&flags), Details: flags}, nil
}

// unavailable marks err as an analysis failure. err stays first in the chain
// so an upstream status it carries wins over the bare sentinel.
func unavailable(err error) error {
	return fmt.Errorf("%w: %w", err, ErrAnalysisUnavailable)
}
