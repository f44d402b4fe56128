package model

import "github.com/pkg/errors"

// ScenarioType classifies the input side of a conversational scenario.
type ScenarioType string

const (
	ScenarioAudioInput   ScenarioType = "audio_input"
	ScenarioTextInput    ScenarioType = "text_input"
	ScenarioTTSOnly      ScenarioType = "tts_only"
	ScenarioConversation ScenarioType = "conversation"
)

// ResponseType is the expected size class of the tutor's response.
type ResponseType string

const (
	ResponseShort  ResponseType = "short"
	ResponseMedium ResponseType = "medium"
	ResponseLong   ResponseType = "long"
)

// TestScenario is one named conversational exchange a suite measures,
// repeated a fixed number of times per configuration. Scenarios are
// created with their suite and never mutated.
type TestScenario struct {
	ID                     string       `bson:"_id" json:"id" yaml:"id"`
	Name                   string       `bson:"name" json:"name" yaml:"name"`
	Description            string       `bson:"description,omitempty" json:"description,omitempty" yaml:"description,omitempty"`
	Type                   ScenarioType `bson:"type" json:"type" yaml:"type"`
	Repetitions            int          `bson:"repetitions" json:"repetitions" yaml:"repetitions"`
	UserUtteranceAudioPath string       `bson:"user_utterance_audio_path,omitempty" json:"user_utterance_audio_path,omitempty" yaml:"user_utterance_audio_path,omitempty"`
	UserUtteranceText      string       `bson:"user_utterance_text,omitempty" json:"user_utterance_text,omitempty" yaml:"user_utterance_text,omitempty"`
	ExpectedResponseType   ResponseType `bson:"expected_response_type,omitempty" json:"expected_response_type,omitempty" yaml:"expected_response_type,omitempty"`
}

func (s TestScenario) Validate() error {
	if s.Name == "" {
		return errors.New("scenario must have a name")
	}
	if s.Repetitions < 1 {
		return errors.Errorf("scenario '%s' must have at least one repetition", s.Name)
	}
	switch s.Type {
	case ScenarioAudioInput, ScenarioTextInput, ScenarioTTSOnly, ScenarioConversation:
	default:
		return errors.Errorf("scenario '%s' has unknown type '%s'", s.Name, s.Type)
	}
	return nil
}
