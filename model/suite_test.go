package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeComparisonSuite() *TestSuiteDefinition {
	return &TestSuiteDefinition{
		ID:   "comparison",
		Name: "Comparison",
		Scenarios: []TestScenario{
			{ID: "short", Name: "Short", Type: ScenarioTextInput, Repetitions: 3, UserUtteranceText: "hi"},
			{ID: "medium", Name: "Medium", Type: ScenarioTextInput, Repetitions: 2, UserUtteranceText: "explain"},
		},
		NetworkProfiles: []NetworkProfile{NetworkLocalhost, NetworkWifi},
		ParameterSpace: ParameterSpace{
			STTConfigs: []STTTestConfig{{Provider: "deepgram"}, {Provider: "apple"}},
			LLMConfigs: []LLMTestConfig{
				{Provider: "anthropic", Model: "claude-3-5-haiku-20241022"},
				{Provider: "openai", Model: "gpt-4o-mini"},
			},
			TTSConfigs: []TTSTestConfig{{Provider: "chatterbox"}},
		},
	}
}

func TestSuiteExpansionMatchesClosedFormCount(t *testing.T) {
	suite := makeComparisonSuite()

	configs := suite.ExpandConfigurations()
	// (3+2) scenario reps * 2 stt * 2 llm * 1 tts * 1 audio * 2 networks
	assert.Equal(t, 40, suite.TotalTestCount())
	assert.Len(t, configs, suite.TotalTestCount())

	for _, builtin := range []*TestSuiteDefinition{QuickValidationSuite(), ProviderComparisonSuite()} {
		assert.Len(t, builtin.ExpandConfigurations(), builtin.TotalTestCount())
	}
}

func TestSuiteExpansionIDsAreStrictlyIncreasing(t *testing.T) {
	suite := makeComparisonSuite()
	configs := suite.ExpandConfigurations()

	seen := map[string]bool{}
	for idx, cfg := range configs {
		assert.Equal(t, fmt.Sprintf("config_%d", idx+1), cfg.ID)
		assert.False(t, seen[cfg.ID], "duplicate instance id %s", cfg.ID)
		seen[cfg.ID] = true
	}
}

func TestSuiteExpansionIsReproducible(t *testing.T) {
	suite := makeComparisonSuite()

	first := suite.ExpandConfigurations()
	second := suite.ExpandConfigurations()
	require.Equal(t, len(first), len(second))
	for idx := range first {
		assert.Equal(t, first[idx], second[idx])
	}
}

func TestSuiteExpansionOrdering(t *testing.T) {
	suite := makeComparisonSuite()
	configs := suite.ExpandConfigurations()
	require.NotEmpty(t, configs)

	// Repetition varies fastest, then network profile.
	assert.Equal(t, 1, configs[0].Repetition)
	assert.Equal(t, NetworkLocalhost, configs[0].Network)
	assert.Equal(t, 2, configs[1].Repetition)
	assert.Equal(t, NetworkLocalhost, configs[1].Network)
	assert.Equal(t, 3, configs[2].Repetition)
	assert.Equal(t, 1, configs[3].Repetition)
	assert.Equal(t, NetworkWifi, configs[3].Network)

	// Scenario varies slowest.
	assert.Equal(t, "Short", configs[0].ScenarioName)
	assert.Equal(t, "Medium", configs[len(configs)-1].ScenarioName)
}

func TestConfigIDAggregatesAcrossRepetitionAndNetwork(t *testing.T) {
	suite := makeComparisonSuite()
	configs := suite.ExpandConfigurations()

	byKey := map[string]int{}
	for _, cfg := range configs {
		byKey[cfg.ConfigID()]++
	}
	// 2 stt * 2 llm * 1 tts distinct keys, each repeated across
	// scenarios, repetitions, and networks.
	require.Len(t, byKey, 4)
	for key, count := range byKey {
		assert.Equal(t, 10, count, "config_id %s", key)
	}

	assert.Equal(t,
		"deepgram_anthropic_claude-3-5-haiku-20241022_chatterbox",
		configs[0].ConfigID())
}

func TestSuiteValidation(t *testing.T) {
	suite := makeComparisonSuite()
	require.NoError(t, suite.Validate())

	missingScenarios := makeComparisonSuite()
	missingScenarios.Scenarios = nil
	assert.Error(t, missingScenarios.Validate())

	badNetwork := makeComparisonSuite()
	badNetwork.NetworkProfiles = []NetworkProfile{"submarine"}
	assert.Error(t, badNetwork.Validate())

	zeroReps := makeComparisonSuite()
	zeroReps.Scenarios[0].Repetitions = 0
	assert.Error(t, zeroReps.Validate())

	emptySpace := makeComparisonSuite()
	emptySpace.ParameterSpace.LLMConfigs = nil
	assert.Error(t, emptySpace.Validate())
}

func TestParameterSpaceDistinctProviders(t *testing.T) {
	space := makeComparisonSuite().ParameterSpace
	assert.ElementsMatch(t, []string{"deepgram", "apple"}, space.STTProviders())
	assert.ElementsMatch(t, []string{"anthropic", "openai"}, space.LLMProviders())
	assert.ElementsMatch(t, []string{"chatterbox"}, space.TTSProviders())
}
