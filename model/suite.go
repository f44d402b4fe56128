package model

import (
	"fmt"

	"github.com/mongodb/grip"
	"github.com/pkg/errors"
)

// Built-in suite ids registered at service start. Built-in suites cannot
// be deleted through the API.
const (
	SuiteQuickValidation    = "quick_validation"
	SuiteProviderComparison = "provider_comparison"
)

// IsBuiltinSuite reports whether the id names a built-in suite.
func IsBuiltinSuite(id string) bool {
	return id == SuiteQuickValidation || id == SuiteProviderComparison
}

// TestSuiteDefinition declares a combinatorial space of latency tests:
// the scenarios to exercise, the network conditions to run them under,
// and the per-stage parameter space to sweep. Suites are versioned by
// identity only.
type TestSuiteDefinition struct {
	ID              string           `bson:"_id" json:"id" yaml:"id"`
	Name            string           `bson:"name" json:"name" yaml:"name"`
	Description     string           `bson:"description,omitempty" json:"description,omitempty" yaml:"description,omitempty"`
	Scenarios       []TestScenario   `bson:"scenarios" json:"scenarios" yaml:"scenarios"`
	NetworkProfiles []NetworkProfile `bson:"network_profiles" json:"network_profiles" yaml:"network_profiles"`
	ParameterSpace  ParameterSpace   `bson:"parameter_space" json:"parameter_space" yaml:"parameter_space"`
}

func (s *TestSuiteDefinition) Validate() error {
	catcher := grip.NewBasicCatcher()

	if s.ID == "" {
		catcher.Add(errors.New("suite must have an id"))
	}
	if s.Name == "" {
		catcher.Add(errors.New("suite must have a name"))
	}
	if len(s.Scenarios) == 0 {
		catcher.Add(errors.New("suite must define at least one scenario"))
	}
	for _, scenario := range s.Scenarios {
		catcher.Add(scenario.Validate())
	}
	if len(s.NetworkProfiles) == 0 {
		catcher.Add(errors.New("suite must define at least one network profile"))
	}
	for _, profile := range s.NetworkProfiles {
		catcher.Add(profile.Validate())
	}
	if len(s.ParameterSpace.STTConfigs) == 0 {
		catcher.Add(errors.New("parameter space must include at least one stt config"))
	}
	if len(s.ParameterSpace.LLMConfigs) == 0 {
		catcher.Add(errors.New("parameter space must include at least one llm config"))
	}
	if len(s.ParameterSpace.TTSConfigs) == 0 {
		catcher.Add(errors.New("parameter space must include at least one tts config"))
	}

	return catcher.Resolve()
}

// ExpandConfigurations generates every concrete configuration in the
// suite's space. The nesting order — scenario, stt, llm, tts, audio,
// network profile, repetition — and the strictly increasing instance id
// suffix are a contract: two calls with the same suite produce identical
// ordering and ids, which is what makes runs comparable.
func (s *TestSuiteDefinition) ExpandConfigurations() []TestConfiguration {
	configs := make([]TestConfiguration, 0, s.TotalTestCount())
	index := 0

	for _, scenario := range s.Scenarios {
		for _, stt := range s.ParameterSpace.STTConfigs {
			for _, llm := range s.ParameterSpace.LLMConfigs {
				for _, tts := range s.ParameterSpace.TTSConfigs {
					for _, audio := range s.ParameterSpace.EffectiveAudioConfigs() {
						for _, network := range s.NetworkProfiles {
							for rep := 1; rep <= scenario.Repetitions; rep++ {
								index++
								configs = append(configs, TestConfiguration{
									ID:           fmt.Sprintf("config_%d", index),
									ScenarioName: scenario.Name,
									Repetition:   rep,
									STT:          stt,
									LLM:          llm,
									TTS:          tts,
									AudioEngine:  audio,
									Network:      network,
								})
							}
						}
					}
				}
			}
		}
	}

	return configs
}

// TotalTestCount returns the closed-form size of the suite's expansion.
// It always equals len(ExpandConfigurations()).
func (s *TestSuiteDefinition) TotalTestCount() int {
	reps := 0
	for _, scenario := range s.Scenarios {
		reps += scenario.Repetitions
	}

	return reps *
		len(s.ParameterSpace.STTConfigs) *
		len(s.ParameterSpace.LLMConfigs) *
		len(s.ParameterSpace.TTSConfigs) *
		len(s.ParameterSpace.EffectiveAudioConfigs()) *
		len(s.NetworkProfiles)
}

// QuickValidationSuite is the built-in fast sanity suite for CI.
func QuickValidationSuite() *TestSuiteDefinition {
	return &TestSuiteDefinition{
		ID:          SuiteQuickValidation,
		Name:        "Quick Validation",
		Description: "Fast sanity check for CI pipelines",
		Scenarios: []TestScenario{
			{
				ID:                   "short_response",
				Name:                 "Short Response",
				Description:          "Brief Q&A exchange",
				Type:                 ScenarioTextInput,
				Repetitions:          3,
				UserUtteranceText:    "What is the capital of France?",
				ExpectedResponseType: ResponseShort,
			},
		},
		NetworkProfiles: []NetworkProfile{NetworkLocalhost},
		ParameterSpace: ParameterSpace{
			STTConfigs: []STTTestConfig{{Provider: "deepgram", Language: "en-US"}},
			LLMConfigs: []LLMTestConfig{{Provider: "anthropic", Model: "claude-3-5-haiku-20241022", MaxTokens: 512, Temperature: 0.7, Stream: true}},
			TTSConfigs: []TTSTestConfig{{Provider: "chatterbox", Speed: 1.0, UseStreaming: true}},
		},
	}
}

// ProviderComparisonSuite is the built-in suite comparing every available
// provider combination under the common network conditions.
func ProviderComparisonSuite() *TestSuiteDefinition {
	return &TestSuiteDefinition{
		ID:          SuiteProviderComparison,
		Name:        "Provider Comparison",
		Description: "Compare all available providers",
		Scenarios: []TestScenario{
			{
				ID:                   "short_response",
				Name:                 "Short Response",
				Description:          "Brief Q&A exchange",
				Type:                 ScenarioTextInput,
				Repetitions:          10,
				UserUtteranceText:    "What is photosynthesis?",
				ExpectedResponseType: ResponseShort,
			},
			{
				ID:                   "medium_response",
				Name:                 "Medium Response",
				Description:          "Moderate explanation",
				Type:                 ScenarioTextInput,
				Repetitions:          5,
				UserUtteranceText:    "Explain how the human heart works.",
				ExpectedResponseType: ResponseMedium,
			},
		},
		NetworkProfiles: []NetworkProfile{NetworkLocalhost, NetworkWifi, NetworkCellularUS},
		ParameterSpace: ParameterSpace{
			STTConfigs: []STTTestConfig{
				{Provider: "deepgram", Language: "en-US"},
				{Provider: "assemblyai", Language: "en-US"},
				{Provider: "apple", Language: "en-US"},
			},
			LLMConfigs: []LLMTestConfig{
				{Provider: "anthropic", Model: "claude-3-5-haiku-20241022", MaxTokens: 512, Temperature: 0.7, Stream: true},
				{Provider: "openai", Model: "gpt-4o-mini", MaxTokens: 512, Temperature: 0.7, Stream: true},
				{Provider: "selfhosted", Model: "qwen2.5:7b", MaxTokens: 512, Temperature: 0.7, Stream: true},
			},
			TTSConfigs: []TTSTestConfig{
				{Provider: "chatterbox", Speed: 1.0, UseStreaming: true},
				{Provider: "vibevoice", Speed: 1.0, UseStreaming: true},
				{Provider: "apple", Speed: 1.0, UseStreaming: true},
			},
		},
	}
}
