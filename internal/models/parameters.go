package models

import (
	"fmt"
	"time"
)

// Defaults is the complete set of generation tunables. It is what the
// configuration file carries and what a user configuration resolves to.
type Defaults struct {
	Temperature      float64 `yaml:"temperature" json:"temperature"`
	MaxTokens        int     `yaml:"max_tokens" json:"max_tokens"`
	TopP             float64 `yaml:"top_p" json:"top_p"`
	PresencePenalty  float64 `yaml:"presence_penalty" json:"presence_penalty"`
	FrequencyPenalty float64 `yaml:"frequency_penalty" json:"frequency_penalty"`
}

// BuiltinDefaults are used when the configuration file has no defaults section.
func BuiltinDefaults() Defaults {
	return Defaults{
		Temperature:      0.7,
		MaxTokens:        512,
		TopP:             1.0,
		PresencePenalty:  0,
		FrequencyPenalty: 0,
	}
}

// Parameters converts d into request parameters with every optional field set.
func (d Defaults) Parameters() Parameters {
	topP, presence, frequency := d.TopP, d.PresencePenalty, d.FrequencyPenalty
	return Parameters{
		Temperature:      d.Temperature,
		MaxTokens:        d.MaxTokens,
		TopP:             &topP,
		PresencePenalty:  &presence,
		FrequencyPenalty: &frequency,
	}
}

// Parameters are the tunables of a single generation request. Optional
// fields left nil are not sent; fields a provider does not support are
// dropped by its adapter.
type Parameters struct {
	Temperature      float64  `json:"temperature"`
	MaxTokens        int      `json:"max_tokens"`
	TopP             *float64 `json:"top_p,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
}

// UserConfig is the stored per-user override row. Nil fields fall back to
// the global defaults when read.
type UserConfig struct {
	Email            string    `json:"email"`
	Temperature      *float64  `json:"temperature"`
	MaxTokens        *int      `json:"max_tokens"`
	TopP             *float64  `json:"top_p"`
	PresencePenalty  *float64  `json:"presence_penalty"`
	FrequencyPenalty *float64  `json:"frequency_penalty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Merge fills every unset field of u from fallback.
func (u UserConfig) Merge(fallback Defaults) Defaults {
	out := fallback
	if u.Temperature != nil {
		out.Temperature = *u.Temperature
	}
	if u.MaxTokens != nil {
		out.MaxTokens = *u.MaxTokens
	}
	if u.TopP != nil {
		out.TopP = *u.TopP
	}
	if u.PresencePenalty != nil {
		out.PresencePenalty = *u.PresencePenalty
	}
	if u.FrequencyPenalty != nil {
		out.FrequencyPenalty = *u.FrequencyPenalty
	}
	return out
}

// Validate checks d against the provider-independent bounds.
func (d Defaults) Validate() error {
	switch {
	case !within(d.Temperature, 0, 2):
		return fmt.Errorf("temperature must be between 0 and 2, got %v", d.Temperature)
	case d.MaxTokens < 1:
		return fmt.Errorf("max_tokens must be positive, got %d", d.MaxTokens)
	case !within(d.TopP, 0, 1):
		return fmt.Errorf("top_p must be between 0 and 1, got %v", d.TopP)
	case !within(d.PresencePenalty, -2, 2):
		return fmt.Errorf("presence_penalty must be between -2 and 2, got %v", d.PresencePenalty)
	case !within(d.FrequencyPenalty, -2, 2):
		return fmt.Errorf("frequency_penalty must be between -2 and 2, got %v", d.FrequencyPenalty)
	}
	return nil
}

func within(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}
