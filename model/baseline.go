package model

import "time"

// BaselineMetrics aggregates the successful measurements for one
// config_id (or for a whole run, in the overall record).
type BaselineMetrics struct {
	MedianE2EMS           float64  `bson:"median_e2e_ms" json:"median_e2e_ms" yaml:"median_e2e_ms"`
	P99E2EMS              float64  `bson:"p99_e2e_ms" json:"p99_e2e_ms" yaml:"p99_e2e_ms"`
	MinE2EMS              float64  `bson:"min_e2e_ms" json:"min_e2e_ms" yaml:"min_e2e_ms"`
	MaxE2EMS              float64  `bson:"max_e2e_ms" json:"max_e2e_ms" yaml:"max_e2e_ms"`
	MedianSTTMS           *float64 `bson:"median_stt_ms,omitempty" json:"median_stt_ms,omitempty" yaml:"median_stt_ms,omitempty"`
	MedianLLMTTFBMS       float64  `bson:"median_llm_ttfb_ms" json:"median_llm_ttfb_ms" yaml:"median_llm_ttfb_ms"`
	MedianLLMCompletionMS float64  `bson:"median_llm_completion_ms" json:"median_llm_completion_ms" yaml:"median_llm_completion_ms"`
	MedianTTSTTFBMS       float64  `bson:"median_tts_ttfb_ms" json:"median_tts_ttfb_ms" yaml:"median_tts_ttfb_ms"`
	MedianTTSCompletionMS float64  `bson:"median_tts_completion_ms" json:"median_tts_completion_ms" yaml:"median_tts_completion_ms"`
	SampleCount           int      `bson:"sample_count" json:"sample_count" yaml:"sample_count"`
}

// PerformanceBaseline is a stored snapshot of aggregated per-config
// metrics from one completed run, used as a regression reference. At
// most one baseline is active at a time; activating a baseline
// deactivates all others.
type PerformanceBaseline struct {
	ID            string                     `bson:"_id" json:"id" yaml:"id"`
	Name          string                     `bson:"name" json:"name" yaml:"name"`
	Description   string                     `bson:"description,omitempty" json:"description,omitempty" yaml:"description,omitempty"`
	RunID         string                     `bson:"run_id" json:"run_id" yaml:"run_id"`
	CreatedAt     time.Time                  `bson:"created_at" json:"created_at" yaml:"created_at"`
	IsActive      bool                       `bson:"is_active" json:"is_active" yaml:"is_active"`
	ConfigMetrics map[string]BaselineMetrics `bson:"config_metrics" json:"config_metrics" yaml:"config_metrics"`
	Overall       BaselineMetrics            `bson:"overall_metrics" json:"overall_metrics" yaml:"overall_metrics"`
}
