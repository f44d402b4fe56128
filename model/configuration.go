package model

import "strings"

// TestConfiguration is one point in a suite's expansion: a concrete
// combination of per-stage settings and a network profile for a single
// repetition of a scenario.
type TestConfiguration struct {
	// ID is the instance id, unique within a suite expansion and
	// strictly increasing in expansion order.
	ID           string                `bson:"_id" json:"id" yaml:"id"`
	ScenarioName string                `bson:"scenario_name" json:"scenario_name" yaml:"scenario_name"`
	Repetition   int                   `bson:"repetition" json:"repetition" yaml:"repetition"`
	STT          STTTestConfig         `bson:"stt" json:"stt" yaml:"stt"`
	LLM          LLMTestConfig         `bson:"llm" json:"llm" yaml:"llm"`
	TTS          TTSTestConfig         `bson:"tts" json:"tts" yaml:"tts"`
	AudioEngine  AudioEngineTestConfig `bson:"audio_engine" json:"audio_engine" yaml:"audio_engine"`
	Network      NetworkProfile        `bson:"network_profile" json:"network_profile" yaml:"network_profile"`
}

// ConfigID derives the aggregation key for this configuration. It is
// deliberately independent of the repetition index and network profile so
// that results measured across repetitions and conditions aggregate
// under one key.
func (c TestConfiguration) ConfigID() string {
	return strings.Join([]string{
		c.STT.Provider,
		c.LLM.Provider,
		c.LLM.Model,
		c.TTS.Provider,
	}, "_")
}
