package graph

import "testing"

func TestIsValidEntity(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  bool
	}{
		{"plain word", "FastAPI", true},
		{"multi word", "project roadmap", true},
		{"pronoun", "you", false},
		{"pronoun upper", "I", false},
		{"numeric token", "1-2", false},
		{"numeric only", "1.", false},
		{"code signal def", "def foo():", false},
		{"code signal arrow", "x => y", false},
		{"code signal print", "print(x)", false},
		{"camel config suffix", "UserConfig", false},
		{"camel router suffix", "APIRouter", false},
		{"camel suffix with space ok", "User Config", true},
		{"newline", "foo\nbar", false},
		{"too long", stringOfLen(81), false},
		{"max length ok", stringOfLen(80), true},
		{"low alnum ratio", "!!!***???", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidEntity(tc.input); got != tc.want {
				t.Errorf("IsValidEntity(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestIsValidEntityIdempotent(t *testing.T) {
	inputs := []string{"FastAPI", "you", "def foo():", "UserConfig", ""}
	for _, in := range inputs {
		first := IsValidEntity(in)
		second := IsValidEntity(in)
		if first != second {
			t.Errorf("IsValidEntity(%q) not idempotent: %v then %v", in, first, second)
		}
	}
}

func TestSanitizeLabel(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"uses", "USES"},
		{"works at", "WORKS_AT"},
		{"1st-place", "RELATES_TO"},
		{"!!!", "RELATES_TO"},
		{"", "RELATES_TO"},
		{"a-b_c", "A_B_C"},
	}
	for _, tc := range cases {
		if got := SanitizeLabel(tc.input); got != tc.want {
			t.Errorf("SanitizeLabel(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func stringOfLen(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
