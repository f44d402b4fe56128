package analysis

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/unamentis/laurel/model"
)

// Regression severity, classified from the percentage change in median
// end-to-end latency relative to the baseline. Improvement is a separate
// flag, not a severity: an improved configuration reports severity
// "none".
const (
	SeverityNone     = "none"
	SeverityMinor    = "minor"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"

	improvementThresholdPercent = -5
)

func classifySeverity(deltaPercent float64) string {
	switch {
	case deltaPercent > 50:
		return SeveritySevere
	case deltaPercent > 20:
		return SeverityModerate
	case deltaPercent > 10:
		return SeverityMinor
	default:
		return SeverityNone
	}
}

func isImproved(deltaPercent float64) bool {
	return deltaPercent < improvementThresholdPercent
}

func isRegression(severity string) bool {
	return severity == SeverityMinor || severity == SeverityModerate || severity == SeveritySevere
}

// CreateBaseline snapshots a completed run's aggregated metrics. The
// run must be completed and have at least one successful result.
func CreateBaseline(name, description string, run *model.TestRun, activate bool) (*model.PerformanceBaseline, error) {
	if name == "" {
		return nil, errors.New("baseline name is not specified")
	}
	if run.Status != model.RunCompleted {
		return nil, errors.Errorf("cannot create a baseline from run '%s' in status '%s'", run.ID, run.Status)
	}
	successful := run.SuccessfulResults()
	if len(successful) == 0 {
		return nil, errors.Errorf("run '%s' has no successful results", run.ID)
	}

	baseline := &model.PerformanceBaseline{
		ID:            fmt.Sprintf("baseline_%s", uuid.New().String()[0:8]),
		Name:          name,
		Description:   description,
		RunID:         run.ID,
		CreatedAt:     time.Now(),
		IsActive:      activate,
		ConfigMetrics: map[string]model.BaselineMetrics{},
		Overall:       computeMetrics(successful),
	}
	for configID, group := range groupByConfig(successful) {
		baseline.ConfigMetrics[configID] = computeMetrics(group)
	}
	return baseline, nil
}

func computeMetrics(results []model.TestResult) model.BaselineMetrics {
	var e2e, sttValues, llmTTFB, llmCompletion, ttsTTFB, ttsCompletion []float64
	for _, result := range results {
		e2e = append(e2e, result.E2ELatencyMS)
		if result.STTLatencyMS != nil {
			sttValues = append(sttValues, *result.STTLatencyMS)
		}
		llmTTFB = append(llmTTFB, result.LLMTTFBMS)
		llmCompletion = append(llmCompletion, result.LLMCompletionMS)
		ttsTTFB = append(ttsTTFB, result.TTSTTFBMS)
		ttsCompletion = append(ttsCompletion, result.TTSCompletionMS)
	}
	min, max := minMax(e2e)

	metrics := model.BaselineMetrics{
		MedianE2EMS:           median(e2e),
		P99E2EMS:              p99(e2e),
		MinE2EMS:              min,
		MaxE2EMS:              max,
		MedianLLMTTFBMS:       median(llmTTFB),
		MedianLLMCompletionMS: median(llmCompletion),
		MedianTTSTTFBMS:       median(ttsTTFB),
		MedianTTSCompletionMS: median(ttsCompletion),
		SampleCount:           len(results),
	}
	if len(sttValues) > 0 {
		val := median(sttValues)
		metrics.MedianSTTMS = &val
	}
	return metrics
}

// ConfigComparison is one configuration's current performance against
// its baseline metrics.
type ConfigComparison struct {
	ConfigID            string  `json:"config_id" yaml:"config_id"`
	BaselineMedianE2EMS float64 `json:"baseline_median_e2e_ms" yaml:"baseline_median_e2e_ms"`
	CurrentMedianE2EMS  float64 `json:"current_median_e2e_ms" yaml:"current_median_e2e_ms"`
	DeltaMS             float64 `json:"delta_ms" yaml:"delta_ms"`
	DeltaPercent        float64 `json:"delta_percent" yaml:"delta_percent"`
	Severity            string  `json:"severity" yaml:"severity"`
	Improved            bool    `json:"improved" yaml:"improved"`
	IsNew               bool    `json:"is_new" yaml:"is_new"`
}

// BaselineReport is the result of checking a run against a baseline.
type BaselineReport struct {
	BaselineID       string             `json:"baseline_id" yaml:"baseline_id"`
	BaselineName     string             `json:"baseline_name" yaml:"baseline_name"`
	RunID            string             `json:"run_id" yaml:"run_id"`
	CheckedAt        time.Time          `json:"checked_at" yaml:"checked_at"`
	Configs          []ConfigComparison `json:"configs" yaml:"configs"`
	Overall          ConfigComparison   `json:"overall" yaml:"overall"`
	RegressionCount  int                `json:"regression_count" yaml:"regression_count"`
	ImprovementCount int                `json:"improvement_count" yaml:"improvement_count"`
	NewConfigCount   int                `json:"new_config_count" yaml:"new_config_count"`
	HasRegressions   bool               `json:"has_regressions" yaml:"has_regressions"`
}

// CheckBaseline compares a run's per-configuration medians to the
// baseline's. Configurations absent from the baseline are reported as
// new rather than regressed.
func CheckBaseline(baseline *model.PerformanceBaseline, run *model.TestRun) *BaselineReport {
	report := &BaselineReport{
		BaselineID:   baseline.ID,
		BaselineName: baseline.Name,
		RunID:        run.ID,
		CheckedAt:    time.Now(),
		Configs:      []ConfigComparison{},
	}

	successful := run.SuccessfulResults()
	for configID, group := range groupByConfig(successful) {
		current := median(e2eValues(group))
		comparison := ConfigComparison{
			ConfigID:           configID,
			CurrentMedianE2EMS: current,
		}

		reference, ok := baseline.ConfigMetrics[configID]
		if !ok {
			comparison.IsNew = true
			comparison.Severity = SeverityNone
			report.NewConfigCount++
		} else {
			comparison.BaselineMedianE2EMS = reference.MedianE2EMS
			comparison.DeltaMS = current - reference.MedianE2EMS
			if reference.MedianE2EMS > 0 {
				comparison.DeltaPercent = comparison.DeltaMS / reference.MedianE2EMS * 100
			}
			comparison.Severity = classifySeverity(comparison.DeltaPercent)
			comparison.Improved = isImproved(comparison.DeltaPercent)
			if isRegression(comparison.Severity) {
				report.RegressionCount++
			} else if comparison.Improved {
				report.ImprovementCount++
			}
		}
		report.Configs = append(report.Configs, comparison)
	}
	sort.Slice(report.Configs, func(i, j int) bool {
		return report.Configs[i].ConfigID < report.Configs[j].ConfigID
	})

	overall := median(e2eValues(successful))
	report.Overall = ConfigComparison{
		ConfigID:            "overall",
		BaselineMedianE2EMS: baseline.Overall.MedianE2EMS,
		CurrentMedianE2EMS:  overall,
		DeltaMS:             overall - baseline.Overall.MedianE2EMS,
	}
	if baseline.Overall.MedianE2EMS > 0 {
		report.Overall.DeltaPercent = report.Overall.DeltaMS / baseline.Overall.MedianE2EMS * 100
	}
	report.Overall.Severity = classifySeverity(report.Overall.DeltaPercent)
	report.Overall.Improved = isImproved(report.Overall.DeltaPercent)

	report.HasRegressions = report.RegressionCount > 0
	return report
}
