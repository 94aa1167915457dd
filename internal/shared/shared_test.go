package shared

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestCanonicalKey(t *testing.T) {
	tc := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{
			name:  "dashed guid",
			input: "0F8FAD5B-D9CB-469F-A165-70867728950E",
			want:  "0f8fad5bd9cb469fa16570867728950e",
			ok:    true,
		},
		{
			name:  "compact guid",
			input: "0f8fad5bd9cb469fa16570867728950e",
			want:  "0f8fad5bd9cb469fa16570867728950e",
			ok:    true,
		},
		{
			name:  "surrounding whitespace",
			input: "  0f8fad5b-d9cb-469f-a165-70867728950e ",
			want:  "0f8fad5bd9cb469fa16570867728950e",
			ok:    true,
		},
		{name: "numeric id", input: "12345", ok: false},
		{name: "empty", input: "", ok: false},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CanonicalKey(tt.input)
			if ok != tt.ok {
				t.Fatalf("CanonicalKey() ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("CanonicalKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContainsFold(t *testing.T) {
	if !ContainsFold("Daft Punk feat. Pharrell", "pharrell") {
		t.Error("expected case-insensitive substring match")
	}
	if ContainsFold("Daft Punk", "justice") {
		t.Error("unexpected match")
	}
}

func TestLoggerHelpers(t *testing.T) {
	t.Run("SetLogLevelString", func(t *testing.T) {
		l := NewLogger(&bytes.Buffer{})
		if !SetLogLevelString(l, "debug") {
			t.Fatal("expected debug to parse")
		}
		if l.GetLevel() != log.DebugLevel {
			t.Errorf("expected debug level, got %v", l.GetLevel())
		}
		if SetLogLevelString(l, "loud") {
			t.Error("unknown level should not parse")
		}
	})

	t.Run("WithLogger adds fields", func(t *testing.T) {
		var buf bytes.Buffer
		l := WithLogger(NewLogger(&buf), "component", "mix")
		l.Info("hello")
		if !strings.Contains(buf.String(), "component=mix") {
			t.Errorf("expected component field, got %q", buf.String())
		}
	})
}
