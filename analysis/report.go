package analysis

import (
	"fmt"
	"sort"
	"time"

	"github.com/unamentis/laurel/model"
)

// Voice-loop latency targets in milliseconds. A tutoring exchange under
// the fast target feels conversational; past the acceptable target the
// pause is long enough to break the student's attention.
const (
	FastTargetMS       = 500
	AcceptableTargetMS = 1000
)

// LatencyBreakdown holds the per-stage medians for one configuration.
type LatencyBreakdown struct {
	MedianSTTMS           *float64 `json:"median_stt_ms,omitempty" yaml:"median_stt_ms,omitempty"`
	MedianLLMTTFBMS       float64  `json:"median_llm_ttfb_ms" yaml:"median_llm_ttfb_ms"`
	MedianLLMCompletionMS float64  `json:"median_llm_completion_ms" yaml:"median_llm_completion_ms"`
	MedianTTSTTFBMS       float64  `json:"median_tts_ttfb_ms" yaml:"median_tts_ttfb_ms"`
	MedianTTSCompletionMS float64  `json:"median_tts_completion_ms" yaml:"median_tts_completion_ms"`
}

// RankedConfiguration aggregates one config_id's results across every
// scenario, repetition, and network profile in the run.
type RankedConfiguration struct {
	Rank         int              `json:"rank" yaml:"rank"`
	ConfigID     string           `json:"config_id" yaml:"config_id"`
	MedianE2EMS  float64          `json:"median_e2e_ms" yaml:"median_e2e_ms"`
	P99E2EMS     float64          `json:"p99_e2e_ms" yaml:"p99_e2e_ms"`
	StdDevE2EMS  float64          `json:"stddev_e2e_ms" yaml:"stddev_e2e_ms"`
	MinE2EMS     float64          `json:"min_e2e_ms" yaml:"min_e2e_ms"`
	MaxE2EMS     float64          `json:"max_e2e_ms" yaml:"max_e2e_ms"`
	SampleCount  int              `json:"sample_count" yaml:"sample_count"`
	FailureCount int              `json:"failure_count" yaml:"failure_count"`
	Breakdown    LatencyBreakdown `json:"breakdown" yaml:"breakdown"`
}

// NetworkTarget is the projected end-to-end latency of one
// configuration under one network profile, checked against the voice
// targets.
type NetworkTarget struct {
	MedianProjectedE2EMS  float64 `json:"median_projected_e2e_ms" yaml:"median_projected_e2e_ms"`
	MeetsFastTarget       bool    `json:"meets_fast_target" yaml:"meets_fast_target"`
	MeetsAcceptableTarget bool    `json:"meets_acceptable_target" yaml:"meets_acceptable_target"`
}

// NetworkProjectionSummary maps a network profile to the projection for
// one configuration.
type NetworkProjectionSummary map[string]NetworkTarget

// SummaryStatistics aggregates a whole run.
type SummaryStatistics struct {
	TotalCount   int     `json:"total_count" yaml:"total_count"`
	SuccessCount int     `json:"success_count" yaml:"success_count"`
	FailureCount int     `json:"failure_count" yaml:"failure_count"`
	MedianE2EMS  float64 `json:"median_e2e_ms" yaml:"median_e2e_ms"`
	P99E2EMS     float64 `json:"p99_e2e_ms" yaml:"p99_e2e_ms"`
	MinE2EMS     float64 `json:"min_e2e_ms" yaml:"min_e2e_ms"`
	MaxE2EMS     float64 `json:"max_e2e_ms" yaml:"max_e2e_ms"`
}

// Report is the full analysis of one run.
type Report struct {
	RunID              string                              `json:"run_id" yaml:"run_id"`
	SuiteName          string                              `json:"suite_name" yaml:"suite_name"`
	GeneratedAt        time.Time                           `json:"generated_at" yaml:"generated_at"`
	Summary            SummaryStatistics                   `json:"summary" yaml:"summary"`
	Rankings           []RankedConfiguration               `json:"rankings" yaml:"rankings"`
	NetworkProjections map[string]NetworkProjectionSummary `json:"network_projections" yaml:"network_projections"`
	Baseline           *BaselineReport                     `json:"baseline_comparison,omitempty" yaml:"baseline_comparison,omitempty"`
	Recommendations    []string                            `json:"recommendations" yaml:"recommendations"`
}

func groupByConfig(results []model.TestResult) map[string][]model.TestResult {
	grouped := map[string][]model.TestResult{}
	for _, result := range results {
		grouped[result.ConfigID] = append(grouped[result.ConfigID], result)
	}
	return grouped
}

func e2eValues(results []model.TestResult) []float64 {
	values := make([]float64, 0, len(results))
	for _, result := range results {
		if result.IsSuccess() {
			values = append(values, result.E2ELatencyMS)
		}
	}
	return values
}

// RankConfigurations groups results by config_id and orders the groups
// by ascending median end-to-end latency; the fastest configuration is
// rank 1. Configurations with no successful results sort last.
func RankConfigurations(results []model.TestResult) []RankedConfiguration {
	ranked := []RankedConfiguration{}
	for configID, group := range groupByConfig(results) {
		values := e2eValues(group)
		min, max := minMax(values)

		entry := RankedConfiguration{
			ConfigID:     configID,
			MedianE2EMS:  median(values),
			P99E2EMS:     p99(values),
			StdDevE2EMS:  stdDev(values),
			MinE2EMS:     min,
			MaxE2EMS:     max,
			SampleCount:  len(values),
			FailureCount: len(group) - len(values),
			Breakdown:    breakdown(group),
		}
		ranked = append(ranked, entry)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if (ranked[i].SampleCount == 0) != (ranked[j].SampleCount == 0) {
			return ranked[j].SampleCount == 0
		}
		if ranked[i].MedianE2EMS != ranked[j].MedianE2EMS {
			return ranked[i].MedianE2EMS < ranked[j].MedianE2EMS
		}
		return ranked[i].ConfigID < ranked[j].ConfigID
	})
	for idx := range ranked {
		ranked[idx].Rank = idx + 1
	}
	return ranked
}

func breakdown(results []model.TestResult) LatencyBreakdown {
	var sttValues, llmTTFB, llmCompletion, ttsTTFB, ttsCompletion []float64
	for _, result := range results {
		if !result.IsSuccess() {
			continue
		}
		if result.STTLatencyMS != nil {
			sttValues = append(sttValues, *result.STTLatencyMS)
		}
		llmTTFB = append(llmTTFB, result.LLMTTFBMS)
		llmCompletion = append(llmCompletion, result.LLMCompletionMS)
		ttsTTFB = append(ttsTTFB, result.TTSTTFBMS)
		ttsCompletion = append(ttsCompletion, result.TTSCompletionMS)
	}

	out := LatencyBreakdown{
		MedianLLMTTFBMS:       median(llmTTFB),
		MedianLLMCompletionMS: median(llmCompletion),
		MedianTTSTTFBMS:       median(ttsTTFB),
		MedianTTSCompletionMS: median(ttsCompletion),
	}
	if len(sttValues) > 0 {
		val := median(sttValues)
		out.MedianSTTMS = &val
	}
	return out
}

// Summarize aggregates every result in the run; failures count but do
// not contribute to the latency statistics.
func Summarize(results []model.TestResult) SummaryStatistics {
	values := e2eValues(results)
	min, max := minMax(values)
	return SummaryStatistics{
		TotalCount:   len(results),
		SuccessCount: len(values),
		FailureCount: len(results) - len(values),
		MedianE2EMS:  median(values),
		P99E2EMS:     p99(values),
		MinE2EMS:     min,
		MaxE2EMS:     max,
	}
}

// ProjectNetworks summarizes each configuration's projected latency
// under every network profile, using the per-result projection maps.
func ProjectNetworks(results []model.TestResult) map[string]NetworkProjectionSummary {
	out := map[string]NetworkProjectionSummary{}
	for configID, group := range groupByConfig(results) {
		perProfile := map[string][]float64{}
		for _, result := range group {
			if !result.IsSuccess() {
				continue
			}
			for profile, projected := range result.NetworkProjections {
				perProfile[profile] = append(perProfile[profile], projected)
			}
		}
		if len(perProfile) == 0 {
			continue
		}

		summary := NetworkProjectionSummary{}
		for profile, values := range perProfile {
			projected := median(values)
			summary[profile] = NetworkTarget{
				MedianProjectedE2EMS:  projected,
				MeetsFastTarget:       projected <= FastTargetMS,
				MeetsAcceptableTarget: projected <= AcceptableTargetMS,
			}
		}
		out[configID] = summary
	}
	return out
}

// AnalyzeRun builds the full report for a run, comparing against the
// baseline when one is provided.
func AnalyzeRun(run *model.TestRun, baseline *model.PerformanceBaseline) *Report {
	report := &Report{
		RunID:              run.ID,
		SuiteName:          run.SuiteName,
		GeneratedAt:        time.Now(),
		Summary:            Summarize(run.Results),
		Rankings:           RankConfigurations(run.Results),
		NetworkProjections: ProjectNetworks(run.Results),
	}
	if baseline != nil {
		report.Baseline = CheckBaseline(baseline, run)
	}
	report.Recommendations = recommendations(report)
	return report
}

func recommendations(report *Report) []string {
	out := []string{}

	if len(report.Rankings) > 0 && report.Rankings[0].SampleCount > 0 {
		best := report.Rankings[0]
		out = append(out, fmt.Sprintf(
			"fastest configuration is %s with a median of %.0fms end to end",
			best.ConfigID, best.MedianE2EMS))
		if best.MedianE2EMS > FastTargetMS {
			out = append(out, fmt.Sprintf(
				"no configuration meets the %dms voice target; the best is %.0fms over",
				FastTargetMS, best.MedianE2EMS-FastTargetMS))
		}
	}

	if report.Summary.TotalCount > 0 {
		failureRate := float64(report.Summary.FailureCount) / float64(report.Summary.TotalCount)
		if failureRate > 0.1 {
			out = append(out, fmt.Sprintf(
				"%.0f%% of tests failed; check provider availability before trusting the rankings",
				failureRate*100))
		}
	}

	if report.Baseline != nil && report.Baseline.RegressionCount > 0 {
		out = append(out, fmt.Sprintf(
			"%d configuration(s) regressed against baseline '%s'",
			report.Baseline.RegressionCount, report.Baseline.BaselineName))
	}

	return out
}

// ConfigDelta is the change in one configuration's median latency
// between two runs.
type ConfigDelta struct {
	ConfigID             string  `json:"config_id" yaml:"config_id"`
	BaseMedianE2EMS      float64 `json:"base_median_e2e_ms" yaml:"base_median_e2e_ms"`
	CandidateMedianE2EMS float64 `json:"candidate_median_e2e_ms" yaml:"candidate_median_e2e_ms"`
	DeltaMS              float64 `json:"delta_ms" yaml:"delta_ms"`
	DeltaPercent         float64 `json:"delta_percent" yaml:"delta_percent"`
}

// RunComparison contrasts the shared configurations of two runs.
type RunComparison struct {
	BaseRunID       string        `json:"base_run_id" yaml:"base_run_id"`
	CandidateRunID  string        `json:"candidate_run_id" yaml:"candidate_run_id"`
	Configs         []ConfigDelta `json:"configs" yaml:"configs"`
	OnlyInBase      []string      `json:"only_in_base,omitempty" yaml:"only_in_base,omitempty"`
	OnlyInCandidate []string      `json:"only_in_candidate,omitempty" yaml:"only_in_candidate,omitempty"`
}

// CompareRuns computes per-configuration median deltas between a base
// run and a candidate run. A positive delta means the candidate is
// slower.
func CompareRuns(base, candidate *model.TestRun) *RunComparison {
	baseGroups := groupByConfig(base.Results)
	candidateGroups := groupByConfig(candidate.Results)

	comparison := &RunComparison{
		BaseRunID:      base.ID,
		CandidateRunID: candidate.ID,
		Configs:        []ConfigDelta{},
	}

	for configID, group := range baseGroups {
		other, ok := candidateGroups[configID]
		if !ok {
			comparison.OnlyInBase = append(comparison.OnlyInBase, configID)
			continue
		}

		baseMedian := median(e2eValues(group))
		candidateMedian := median(e2eValues(other))
		delta := ConfigDelta{
			ConfigID:             configID,
			BaseMedianE2EMS:      baseMedian,
			CandidateMedianE2EMS: candidateMedian,
			DeltaMS:              candidateMedian - baseMedian,
		}
		if baseMedian > 0 {
			delta.DeltaPercent = (candidateMedian - baseMedian) / baseMedian * 100
		}
		comparison.Configs = append(comparison.Configs, delta)
	}
	for configID := range candidateGroups {
		if _, ok := baseGroups[configID]; !ok {
			comparison.OnlyInCandidate = append(comparison.OnlyInCandidate, configID)
		}
	}

	sort.Slice(comparison.Configs, func(i, j int) bool {
		return comparison.Configs[i].ConfigID < comparison.Configs[j].ConfigID
	})
	sort.Strings(comparison.OnlyInBase)
	sort.Strings(comparison.OnlyInCandidate)
	return comparison
}
