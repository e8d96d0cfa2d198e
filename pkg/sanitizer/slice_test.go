package sanitizer

import (
	"reflect"
	"testing"
)

func TestNormalizeIdentifiers(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{name: "trim", input: []string{" est-1 ", "est-2"}, want: []string{"est-1", "est-2"}},
		{name: "remove duplicates keeps first", input: []string{"est-2", "est-1", " est-2"}, want: []string{"est-2", "est-1"}},
		{name: "filter empty strings", input: []string{"est-1", "", "  "}, want: []string{"est-1"}},
		{name: "empty input", input: nil, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeIdentifiers(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeIdentifiers(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
