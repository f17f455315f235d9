package util

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "abc", 10, "abc"},
		{"exact", "abcdef", 6, "abcdef"},
		{"cut", "abcdefghij", 8, "abcde..."},
		{"tiny max", "abcdef", 2, ".."},
		{"multibyte boundary", "ab日本語", 7, "ab..."},
		{"multibyte kept", "ab日本語", 8, "ab日..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.in, tt.max); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestSingleLine(t *testing.T) {
	if got := SingleLine("bad\n  token\tvalue "); got != "bad token value" {
		t.Errorf("SingleLine() = %q", got)
	}
}
