package display

import (
	"strings"
	"testing"
	"time"
)

func TestSenderLabel(t *testing.T) {
	tests := []struct {
		input    string
		contains string
	}{
		{"user", "User"},
		{"ai", "AI"},
	}

	for _, tt := range tests {
		label := SenderLabel(tt.input)
		if !strings.Contains(label, tt.contains) {
			t.Errorf("SenderLabel(%q) = %q, expected to contain %q", tt.input, label, tt.contains)
		}
		if !strings.Contains(label, Reset) {
			t.Errorf("SenderLabel(%q) = %q, expected ANSI-colored output", tt.input, label)
		}
	}

	// Unknown sender should come back wrapped in Gray
	unknown := SenderLabel("system")
	if !strings.Contains(unknown, "system") {
		t.Errorf("SenderLabel(unknown) = %q, expected to contain the input", unknown)
	}
	if !strings.Contains(unknown, Gray) {
		t.Errorf("SenderLabel(unknown) = %q, expected Gray coloring", unknown)
	}
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(string) bool
	}{
		{
			name:  "RFC3339",
			input: "2024-01-15T10:30:00Z",
			check: func(s string) bool {
				_, err := time.Parse("2006-01-02 15:04:05", s)
				return err == nil
			},
		},
		{
			name:  "RFC3339Nano",
			input: "2024-01-15T10:30:00.123456789Z",
			check: func(s string) bool {
				_, err := time.Parse("2006-01-02 15:04:05", s)
				return err == nil
			},
		},
		{
			name:  "invalid input",
			input: "not-a-date",
			check: func(s string) bool {
				return s == "not-a-date"
			},
		},
		{
			name:  "empty string",
			input: "",
			check: func(s string) bool {
				return s == ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatTime(tt.input)
			if !tt.check(result) {
				t.Errorf("FormatTime(%q) = %q, unexpected result", tt.input, result)
			}
		})
	}
}
