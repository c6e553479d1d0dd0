package vegas

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/carbocation/genescore/spectrum"
	"github.com/carbocation/genescore/wchisq"
	"gopkg.in/yaml.v3"
)

// DefaultPrecisionFloor is the smallest probability reported when Davies
// converges but Farebrother cannot refine its answer.
const DefaultPrecisionFloor = 1e-12

const (
	// StatisticZScore squares each input before weighting.
	StatisticZScore = "zscore"

	// StatisticChiSquared takes each input as a chi-squared statistic.
	StatisticChiSquared = "chisq"
)

var ErrInvalidSettings = errors.New("invalid settings")

// Settings configure an AnalyticVegas engine.
type Settings struct {
	// CutoffFraction is the share of the total positive eigenvalue mass
	// that the retained spectrum must cover.
	CutoffFraction float64 `yaml:"cutoffFraction"`

	// Algorithm selects a single solver. Empty means cascading mode: Davies,
	// then Farebrother if Davies fails or loses precision.
	Algorithm string `yaml:"algorithm"`

	PrecisionFloor float64 `yaml:"precisionFloor"`

	// StatisticMode is StatisticZScore or StatisticChiSquared.
	StatisticMode string `yaml:"statisticMode"`

	DetailedOutput bool `yaml:"detailedOutput"`
}

func DefaultSettings() Settings {
	return Settings{
		CutoffFraction: spectrum.DefaultCutoffFraction,
		PrecisionFloor: DefaultPrecisionFloor,
		StatisticMode:  StatisticZScore,
	}
}

// LoadSettings reads a YAML settings file. Keys that are absent keep their
// default values.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()

	b, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("LoadSettings: %w", err)
	}

	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("LoadSettings: error parsing %s: %w", path, err)
	}

	return s, s.Validate()
}

// Validate reports the first problem with s, wrapping ErrInvalidSettings.
func (s Settings) Validate() error {
	if math.IsNaN(s.CutoffFraction) || s.CutoffFraction <= 0 || s.CutoffFraction > 1 {
		return fmt.Errorf("%w: cutoffFraction %v is not in (0,1]", ErrInvalidSettings, s.CutoffFraction)
	}

	if math.IsNaN(s.PrecisionFloor) || s.PrecisionFloor <= 0 || s.PrecisionFloor >= 1 {
		return fmt.Errorf("%w: precisionFloor %v is not in (0,1)", ErrInvalidSettings, s.PrecisionFloor)
	}

	switch s.StatisticMode {
	case StatisticZScore, StatisticChiSquared:
	default:
		return fmt.Errorf("%w: statisticMode %q is neither %q nor %q", ErrInvalidSettings, s.StatisticMode, StatisticZScore, StatisticChiSquared)
	}

	if _, _, err := s.algorithm(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	return nil
}

// Cascading reports whether the engine falls back from Davies to Farebrother
// instead of using a single algorithm.
func (s Settings) Cascading() bool {
	return strings.TrimSpace(s.Algorithm) == ""
}

func (s Settings) algorithm() (wchisq.Algorithm, bool, error) {
	if s.Cascading() {
		return 0, false, nil
	}

	a, err := wchisq.ParseAlgorithm(strings.TrimSpace(s.Algorithm))
	if err != nil {
		return 0, false, err
	}

	return a, true, nil
}
