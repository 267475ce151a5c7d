package filename

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "clean name", input: "Unit1", expected: "Unit1"},
		{name: "windows invalid set", input: `a<b>c:d"e/f\g|h?i*j`, expected: "a_b_c_d_e_f_g_h_i_j"},
		{name: "control characters", input: "a\x00b\tc\x1f", expected: "a_b_c_"},
		{name: "all invalid", input: `<>:"/\|?*`, expected: "_________"},
		{name: "unicode kept", input: "Żółw", expected: "Żółw"},
		{name: "empty", input: "", expected: DefaultStem},
		{name: "blank", input: "   ", expected: DefaultStem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Sanitize(tt.input)
			if result != tt.expected {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, result, tt.expected)
			}
			if result == "" {
				t.Error("Sanitize must never return an empty name")
			}
			if strings.ContainsAny(result, invalidChars) {
				t.Errorf("Sanitize(%q) kept an invalid character: %q", tt.input, result)
			}
		})
	}
}

func TestSuggest(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "pascal file", input: "Unit1.pas", expected: "Unit1.cs"},
		{name: "path", input: "/src/project/Main.dpr", expected: "Main.cs"},
		{name: "no extension", input: "program", expected: "program.cs"},
		{name: "empty", input: "", expected: "ConvertedCode.cs"},
		{name: "extension only", input: ".pas", expected: "ConvertedCode.cs"},
		{name: "invalid characters", input: "a?b*.pas", expected: "a_b_.cs"},
		{name: "multiple dots", input: "my.unit.pas", expected: "my.unit.cs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Suggest(tt.input)
			if result != tt.expected {
				t.Errorf("Suggest(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
