package htmlsanitize_test

import (
	"testing"

	"github.com/dalemusser/groupdrop/internal/app/system/htmlsanitize"
)

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "Alice", "Alice"},
		{"bold tag", "<b>Alice</b>", "Alice"},
		{"script removed", "Bob<script>alert('x')</script>", "Bob"},
		{"ampersand survives", "Tom & Jerry", "Tom & Jerry"},
		{"unicode", "Nguyễn Văn A", "Nguyễn Văn A"},
		{"attributes removed", `<img src=x onerror="alert(1)">report.pdf`, "report.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := htmlsanitize.Text(tt.input)
			if got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsPlainText(t *testing.T) {
	if !htmlsanitize.IsPlainText("Team A") {
		t.Error("expected plain name to be plain text")
	}
	if !htmlsanitize.IsPlainText("1 < 2") {
		t.Error("expected lone angle bracket to be plain text")
	}
	if htmlsanitize.IsPlainText("<i>Team</i>") {
		t.Error("expected markup to be rejected")
	}
}
