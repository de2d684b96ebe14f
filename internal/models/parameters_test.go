package models

import (
	"math"
	"testing"
)

func TestUserConfigMergeFallsBackPerField(t *testing.T) {
	temp := 1.3
	maxTokens := 2048
	cfg := UserConfig{Email: "a@example.com", Temperature: &temp, MaxTokens: &maxTokens}
	defaults := Defaults{Temperature: 0.7, MaxTokens: 512, TopP: 0.9, PresencePenalty: 0.1, FrequencyPenalty: 0.2}

	got := cfg.Merge(defaults)
	want := Defaults{Temperature: 1.3, MaxTokens: 2048, TopP: 0.9, PresencePenalty: 0.1, FrequencyPenalty: 0.2}
	if got != want {
		t.Fatalf("merge mismatch: got %+v want %+v", got, want)
	}
}

func TestDefaultsParametersSetsOptionals(t *testing.T) {
	p := BuiltinDefaults().Parameters()
	if p.TopP == nil || p.PresencePenalty == nil || p.FrequencyPenalty == nil {
		t.Fatalf("expected all optional parameters to be set: %+v", p)
	}
	if *p.TopP != 1.0 || p.MaxTokens != 512 {
		t.Fatalf("unexpected values: %+v", p)
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleAssistant, RoleSystem} {
		if !r.Valid() {
			t.Fatalf("%q should be valid", r)
		}
	}
	if Role("tool").Valid() || Role("").Valid() {
		t.Fatalf("unexpected valid role")
	}
}

func TestDefaultsValidate(t *testing.T) {
	if err := BuiltinDefaults().Validate(); err != nil {
		t.Fatalf("builtin defaults invalid: %v", err)
	}
	cases := []Defaults{
		{Temperature: 2.5, MaxTokens: 10},
		{Temperature: 1, MaxTokens: 0},
		{Temperature: 1, MaxTokens: 10, TopP: 1.5},
		{Temperature: 1, MaxTokens: 10, PresencePenalty: -3},
		{Temperature: 1, MaxTokens: 10, FrequencyPenalty: 2.1},
		{Temperature: math.NaN(), MaxTokens: 10},
		{Temperature: 1, MaxTokens: 10, TopP: math.NaN()},
		{Temperature: 1, MaxTokens: 10, PresencePenalty: math.NaN()},
		{Temperature: 1, MaxTokens: 10, FrequencyPenalty: math.NaN()},
	}
	for i, d := range cases {
		if err := d.Validate(); err == nil {
			t.Fatalf("case %d: expected error for %+v", i, d)
		}
	}
}
