package utils

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short unchanged", "faq.txt", 60, "faq.txt"},
		{"exact length unchanged", "faq.txt", 7, "faq.txt"},
		{"cut with ellipsis", "employee-handbook.pdf", 8, "employee..."},
		{"non-positive max unchanged", "x", 0, "x"},
		{"counts runes", "héllo wörld", 4, "héll..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.in, tt.max); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}
