package globmatch

import "testing"

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, s string
		want       bool
	}{
		{"*", "anything", true},
		{"*", "anything.with.dots", true},
		{"claim.*", "claim.task1", true},
		{"claim.*", "claim.task1.extra", false},
		{"claim.*", "release.task1", false},
		{"claim.task1", "claim.task1", true},
		{"claim.task1", "claim.task2", false},
	}
	for _, c := range cases {
		if got := Match(c.pattern, c.s); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.pattern, c.s, got, c.want)
		}
	}
}
