package model

// On-device provider allow-lists. A stage whose provider appears in the
// list for its stage runs without a network round trip, so network
// projections add no overhead for it.
var (
	onDeviceSTTProviders = map[string]bool{
		"apple":            true,
		"glm-asr-ondevice": true,
		"web-speech":       true,
	}
	onDeviceLLMProviders = map[string]bool{
		"mlx": true,
	}
	onDeviceTTSProviders = map[string]bool{
		"apple":      true,
		"web-speech": true,
	}
)

// STTTestConfig describes the speech-to-text stage of a configuration.
type STTTestConfig struct {
	Provider    string `bson:"provider" json:"provider" yaml:"provider"`
	Model       string `bson:"model,omitempty" json:"model,omitempty" yaml:"model,omitempty"`
	ChunkSizeMS int    `bson:"chunk_size_ms,omitempty" json:"chunk_size_ms,omitempty" yaml:"chunk_size_ms,omitempty"`
	Language    string `bson:"language,omitempty" json:"language,omitempty" yaml:"language,omitempty"`
}

func (c STTTestConfig) RequiresNetwork() bool { return !onDeviceSTTProviders[c.Provider] }

// LLMTestConfig describes the language-model stage of a configuration.
type LLMTestConfig struct {
	Provider    string  `bson:"provider" json:"provider" yaml:"provider"`
	Model       string  `bson:"model" json:"model" yaml:"model"`
	MaxTokens   int     `bson:"max_tokens,omitempty" json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature float64 `bson:"temperature,omitempty" json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP        float64 `bson:"top_p,omitempty" json:"top_p,omitempty" yaml:"top_p,omitempty"`
	Stream      bool    `bson:"stream" json:"stream" yaml:"stream"`
}

func (c LLMTestConfig) RequiresNetwork() bool { return !onDeviceLLMProviders[c.Provider] }

// ChatterboxConfig carries the tunables specific to the chatterbox TTS
// provider.
type ChatterboxConfig struct {
	Exaggeration             float64 `bson:"exaggeration,omitempty" json:"exaggeration,omitempty" yaml:"exaggeration,omitempty"`
	CFGWeight                float64 `bson:"cfg_weight,omitempty" json:"cfg_weight,omitempty" yaml:"cfg_weight,omitempty"`
	Speed                    float64 `bson:"speed,omitempty" json:"speed,omitempty" yaml:"speed,omitempty"`
	EnableParalinguisticTags bool    `bson:"enable_paralinguistic_tags,omitempty" json:"enable_paralinguistic_tags,omitempty" yaml:"enable_paralinguistic_tags,omitempty"`
	UseMultilingual          bool    `bson:"use_multilingual,omitempty" json:"use_multilingual,omitempty" yaml:"use_multilingual,omitempty"`
	Language                 string  `bson:"language,omitempty" json:"language,omitempty" yaml:"language,omitempty"`
	UseStreaming             bool    `bson:"use_streaming,omitempty" json:"use_streaming,omitempty" yaml:"use_streaming,omitempty"`
	Seed                     int64   `bson:"seed,omitempty" json:"seed,omitempty" yaml:"seed,omitempty"`
}

// TTSTestConfig describes the text-to-speech stage of a configuration.
type TTSTestConfig struct {
	Provider     string            `bson:"provider" json:"provider" yaml:"provider"`
	VoiceID      string            `bson:"voice_id,omitempty" json:"voice_id,omitempty" yaml:"voice_id,omitempty"`
	Speed        float64           `bson:"speed,omitempty" json:"speed,omitempty" yaml:"speed,omitempty"`
	UseStreaming bool              `bson:"use_streaming" json:"use_streaming" yaml:"use_streaming"`
	Chatterbox   *ChatterboxConfig `bson:"chatterbox,omitempty" json:"chatterbox,omitempty" yaml:"chatterbox,omitempty"`
}

func (c TTSTestConfig) RequiresNetwork() bool { return !onDeviceTTSProviders[c.Provider] }

// AudioEngineTestConfig describes the on-device audio engine settings a
// configuration runs with. The audio engine never leaves the device.
type AudioEngineTestConfig struct {
	SampleRate         float64 `bson:"sample_rate,omitempty" json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	BufferSize         int     `bson:"buffer_size,omitempty" json:"buffer_size,omitempty" yaml:"buffer_size,omitempty"`
	VADThreshold       float64 `bson:"vad_threshold,omitempty" json:"vad_threshold,omitempty" yaml:"vad_threshold,omitempty"`
	VADSmoothingWindow int     `bson:"vad_smoothing_window,omitempty" json:"vad_smoothing_window,omitempty" yaml:"vad_smoothing_window,omitempty"`
}

// DefaultAudioEngineConfig returns the audio engine settings used when a
// suite does not vary the audio dimension.
func DefaultAudioEngineConfig() AudioEngineTestConfig {
	return AudioEngineTestConfig{
		SampleRate:         24000,
		BufferSize:         1024,
		VADThreshold:       0.5,
		VADSmoothingWindow: 5,
	}
}

// ParameterSpace holds the per-stage configuration sets that a suite's
// expansion iterates over. It is an input to configuration generation
// only and is not retained per result.
type ParameterSpace struct {
	STTConfigs   []STTTestConfig         `bson:"stt_configs" json:"stt_configs" yaml:"stt_configs"`
	LLMConfigs   []LLMTestConfig         `bson:"llm_configs" json:"llm_configs" yaml:"llm_configs"`
	TTSConfigs   []TTSTestConfig         `bson:"tts_configs" json:"tts_configs" yaml:"tts_configs"`
	AudioConfigs []AudioEngineTestConfig `bson:"audio_configs,omitempty" json:"audio_configs,omitempty" yaml:"audio_configs,omitempty"`
}

// EffectiveAudioConfigs returns the audio dimension, falling back to the
// single default configuration when the suite does not specify one.
func (s ParameterSpace) EffectiveAudioConfigs() []AudioEngineTestConfig {
	if len(s.AudioConfigs) == 0 {
		return []AudioEngineTestConfig{DefaultAudioEngineConfig()}
	}
	return s.AudioConfigs
}

// STTProviders returns the distinct speech-to-text providers referenced
// by the space.
func (s ParameterSpace) STTProviders() []string {
	return distinct(func(yield func(string)) {
		for _, c := range s.STTConfigs {
			yield(c.Provider)
		}
	})
}

// LLMProviders returns the distinct language-model providers referenced
// by the space.
func (s ParameterSpace) LLMProviders() []string {
	return distinct(func(yield func(string)) {
		for _, c := range s.LLMConfigs {
			yield(c.Provider)
		}
	})
}

// TTSProviders returns the distinct text-to-speech providers referenced
// by the space.
func (s ParameterSpace) TTSProviders() []string {
	return distinct(func(yield func(string)) {
		for _, c := range s.TTSConfigs {
			yield(c.Provider)
		}
	})
}

func distinct(each func(func(string))) []string {
	seen := map[string]bool{}
	out := []string{}
	each(func(val string) {
		if val == "" || seen[val] {
			return
		}
		seen[val] = true
		out = append(out, val)
	})
	return out
}
