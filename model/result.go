package model

import "time"

// TestResult is one measurement of one dispatched configuration. Results
// are created exactly once per executed configuration and are immutable
// afterwards, except for network projection recomputation, which is pure
// and idempotent.
type TestResult struct {
	ID           string     `bson:"_id" json:"id" yaml:"id"`
	ConfigID     string     `bson:"config_id" json:"config_id" yaml:"config_id"`
	ScenarioName string     `bson:"scenario_name" json:"scenario_name" yaml:"scenario_name"`
	Repetition   int        `bson:"repetition" json:"repetition" yaml:"repetition"`
	Timestamp    time.Time  `bson:"timestamp" json:"timestamp" yaml:"timestamp"`
	ClientType   ClientType `bson:"client_type" json:"client_type" yaml:"client_type"`

	// Per-stage latencies in milliseconds. STT latency is optional
	// because tts_only scenarios have no speech input.
	STTLatencyMS    *float64 `bson:"stt_latency_ms,omitempty" json:"stt_latency_ms,omitempty" yaml:"stt_latency_ms,omitempty"`
	LLMTTFBMS       float64  `bson:"llm_ttfb_ms" json:"llm_ttfb_ms" yaml:"llm_ttfb_ms"`
	LLMCompletionMS float64  `bson:"llm_completion_ms" json:"llm_completion_ms" yaml:"llm_completion_ms"`
	TTSTTFBMS       float64  `bson:"tts_ttfb_ms" json:"tts_ttfb_ms" yaml:"tts_ttfb_ms"`
	TTSCompletionMS float64  `bson:"tts_completion_ms" json:"tts_completion_ms" yaml:"tts_completion_ms"`
	E2ELatencyMS    float64  `bson:"e2e_latency_ms" json:"e2e_latency_ms" yaml:"e2e_latency_ms"`

	// Network is the profile the measurement was actually taken under;
	// NetworkProjections maps every defined profile to the projected
	// end-to-end latency under that profile.
	Network            NetworkProfile     `bson:"network_profile" json:"network_profile" yaml:"network_profile"`
	NetworkProjections map[string]float64 `bson:"network_projections,omitempty" json:"network_projections,omitempty" yaml:"network_projections,omitempty"`

	// Optional quality metrics.
	STTConfidence      *float64 `bson:"stt_confidence,omitempty" json:"stt_confidence,omitempty" yaml:"stt_confidence,omitempty"`
	TTSAudioDurationMS *float64 `bson:"tts_audio_duration_ms,omitempty" json:"tts_audio_duration_ms,omitempty" yaml:"tts_audio_duration_ms,omitempty"`
	LLMOutputTokens    *int     `bson:"llm_output_tokens,omitempty" json:"llm_output_tokens,omitempty" yaml:"llm_output_tokens,omitempty"`
	LLMInputTokens     *int     `bson:"llm_input_tokens,omitempty" json:"llm_input_tokens,omitempty" yaml:"llm_input_tokens,omitempty"`

	// Optional resource utilization metrics.
	PeakCPUPercent *float64 `bson:"peak_cpu_percent,omitempty" json:"peak_cpu_percent,omitempty" yaml:"peak_cpu_percent,omitempty"`
	PeakMemoryMB   *float64 `bson:"peak_memory_mb,omitempty" json:"peak_memory_mb,omitempty" yaml:"peak_memory_mb,omitempty"`
	ThermalState   string   `bson:"thermal_state,omitempty" json:"thermal_state,omitempty" yaml:"thermal_state,omitempty"`

	Errors []string `bson:"errors,omitempty" json:"errors,omitempty" yaml:"errors,omitempty"`
}

// IsSuccess reports whether the measurement completed without errors.
// Failed results are excluded from every statistic that assumes success.
func (r *TestResult) IsSuccess() bool { return len(r.Errors) == 0 }

// CalculateNetworkProjections projects the measured end-to-end latency
// onto every defined network profile. Each profile's added-latency
// constant is applied once per network-dependent stage, modeling the
// independent STT, LLM, and TTS network hops; a fully on-device
// configuration projects identically to its measurement everywhere.
func (r *TestResult) CalculateNetworkProjections(sttRequiresNetwork, llmRequiresNetwork, ttsRequiresNetwork bool) map[string]float64 {
	projections := make(map[string]float64, len(NetworkProfiles()))
	for _, profile := range NetworkProfiles() {
		projected := r.E2ELatencyMS
		if sttRequiresNetwork {
			projected += profile.AddedLatencyMS()
		}
		if llmRequiresNetwork {
			projected += profile.AddedLatencyMS()
		}
		if ttsRequiresNetwork {
			projected += profile.AddedLatencyMS()
		}
		projections[string(profile)] = projected
	}
	return projections
}

// ApplyNetworkProjections recomputes and stores the projection map from
// the configuration the result was measured for.
func (r *TestResult) ApplyNetworkProjections(cfg TestConfiguration) {
	r.NetworkProjections = r.CalculateNetworkProjections(
		cfg.STT.RequiresNetwork(),
		cfg.LLM.RequiresNetwork(),
		cfg.TTS.RequiresNetwork(),
	)
}
