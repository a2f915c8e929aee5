package main

import (
	"strings"
	"testing"

	"loom-cli/internal/config"
)

func TestParseGlobalFlags(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantProfile string
		wantArgs    []string
	}{
		{
			name:        "no flags",
			args:        []string{"login", "url"},
			wantProfile: "",
			wantArgs:    []string{"login", "url"},
		},
		{
			name:        "profile before command",
			args:        []string{"--profile", "staging", "login"},
			wantProfile: "staging",
			wantArgs:    []string{"login"},
		},
		{
			name:        "profile after command",
			args:        []string{"config", "--profile", "prod"},
			wantProfile: "prod",
			wantArgs:    []string{"config"},
		},
		{
			name:        "profile with extra args",
			args:        []string{"--profile", "dev", "set", "server", "http://localhost"},
			wantProfile: "dev",
			wantArgs:    []string{"set", "server", "http://localhost"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			activeProfile = ""
			got := parseGlobalFlags(tt.args)
			if activeProfile != tt.wantProfile {
				t.Errorf("activeProfile = %q, want %q", activeProfile, tt.wantProfile)
			}
			if len(got) != len(tt.wantArgs) {
				t.Errorf("remaining args = %v, want %v", got, tt.wantArgs)
				return
			}
			for i := range got {
				if got[i] != tt.wantArgs[i] {
					t.Errorf("arg[%d] = %q, want %q", i, got[i], tt.wantArgs[i])
				}
			}
		})
	}
}

func TestCmdSetRejectsUnknownKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	activeProfile = ""

	if err := cmdSet([]string{"bogus", "value"}); err == nil {
		t.Error("expected error for unknown config key")
	}
}

func TestCmdSetPersistsValue(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	activeProfile = ""

	if err := cmdSet([]string{"model", "loom-r1:14b"}); err != nil {
		t.Fatalf("cmdSet: %v", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "loom-r1:14b" {
		t.Errorf("Model = %q, want %q", cfg.Model, "loom-r1:14b")
	}
}

func TestPreviewLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "short single line",
			input: "hello",
			want:  "hello",
		},
		{
			name:  "truncates at first newline",
			input: "first line\nsecond line",
			want:  "first line",
		},
		{
			name:  "long line gets ellipsis",
			input: strings.Repeat("a", 100),
			want:  strings.Repeat("a", 77) + "...",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := previewLine(tt.input); got != tt.want {
				t.Errorf("previewLine = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCmdAskRequiresLogin(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	activeProfile = ""

	if err := cmdAsk([]string{"hello"}); err == nil {
		t.Error("expected error when not logged in")
	}
}
