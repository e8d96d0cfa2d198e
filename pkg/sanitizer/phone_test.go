package sanitizer

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "valid E.164 format", input: "+972541234567", want: "+972541234567"},
		{name: "with spaces", input: "+972 54 123 4567", want: "+972541234567"},
		{name: "with dashes", input: "+972-54-123-4567", want: "+972541234567"},
		{name: "with parentheses", input: "+1 (212) 555-1234", want: "+12125551234"},
		{name: "french number", input: "+33 1 42 68 53 00", want: "+33142685300"},
		{name: "leading and trailing spaces", input: "  +972541234567  ", want: "+972541234567"},
		{name: "empty string", input: "", want: ""},
		{name: "only whitespace", input: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePhone(tt.input)
			if got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if again := NormalizePhone(got); again != got {
				t.Errorf("NormalizePhone not idempotent: %q -> %q", got, again)
			}
		})
	}
}
