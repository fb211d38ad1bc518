package tokenize

import (
	"reflect"
	"testing"
)

func TestWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Tell me about Science-Fiction books!", []string{"tell", "me", "about", "sciencefiction", "books"}},
		{"  career,   and VALUES. ", []string{"career", "and", "values"}},
		{"... --- !!!", []string{}},
		{"", []string{}},
		{"naïve café", []string{"naïve", "café"}},
	}

	for _, tt := range tests {
		got := Words(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Words(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSet(t *testing.T) {
	s := Set([]string{"a", "b", "a"})
	if len(s) != 2 {
		t.Fatalf("expected 2 distinct tokens, got %d", len(s))
	}
}
