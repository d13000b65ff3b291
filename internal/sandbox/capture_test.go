package sandbox

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBoundedBuffer(t *testing.T) {
	tests := []struct {
		name      string
		max       int64
		writes    []string
		want      string
		truncated bool
	}{
		{"under limit", 10, []string{"abc", "def"}, "abcdef", false},
		{"exact limit", 6, []string{"abc", "def"}, "abcdef", false},
		{"split write", 4, []string{"abc", "def"}, "abcd" + TruncationMarker, true},
		{"after full", 3, []string{"abc", "d"}, "abc" + TruncationMarker, true},
		{"empty write after full", 3, []string{"abc", ""}, "abc", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBoundedBuffer(tt.max)
			for _, w := range tt.writes {
				n, err := b.Write([]byte(w))
				if err != nil || n != len(w) {
					t.Fatalf("Write(%q) = %d, %v", w, n, err)
				}
			}
			got, truncated := b.String()
			if got != tt.want || truncated != tt.truncated {
				t.Errorf("String() = %q, %v; want %q, %v", got, truncated, tt.want, tt.truncated)
			}
		})
	}
}

func TestTruncateOutput_KeepsValidUTF8(t *testing.T) {
	s := []byte(strings.Repeat("é", 10)) // 2 bytes each
	got := truncateOutput(s, 5)
	body := strings.TrimSuffix(got, TruncationMarker)
	if !utf8.ValidString(body) {
		t.Errorf("truncateOutput produced invalid UTF-8: %q", body)
	}
	if body != "éé" {
		t.Errorf("truncateOutput body = %q, want %q", body, "éé")
	}
}

func TestNewBoundedBuffer_DefaultLimit(t *testing.T) {
	if b := newBoundedBuffer(0); b.max != 1<<20 {
		t.Errorf("max = %d, want %d", b.max, 1<<20)
	}
}
