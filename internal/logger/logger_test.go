package logger

import "testing"

func TestTruncate(t *testing.T) {
	cases := []struct {
		name  string
		input string
		limit int
		want  string
	}{
		{name: "short string untouched", input: "hello", limit: 10, want: "hello"},
		{name: "exact limit untouched", input: "hello", limit: 5, want: "hello"},
		{name: "long string truncated", input: "hello world", limit: 5, want: "hello..."},
		{name: "surrounding whitespace trimmed", input: "  hello  ", limit: 10, want: "hello"},
		{name: "zero limit yields empty", input: "hello", limit: 0, want: ""},
		{name: "multibyte runes counted as one", input: "héllö wörld", limit: 5, want: "héllö..."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Truncate(tc.input, tc.limit); got != tc.want {
				t.Fatalf("Truncate(%q, %d) = %q, want %q", tc.input, tc.limit, got, tc.want)
			}
		})
	}
}
