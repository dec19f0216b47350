// Package globmatch implements the one dot-segment glob syntax shared by
// the policy engine's action-budget bucket keys and the tool-policy
// evaluator's rule table: a bare "*" matches everything, and
// "prefix.*" matches exactly one further dot-segment.
package globmatch

import "strings"

// Match reports whether s matches pattern. A lone "*" matches any s,
// including strings with no dots. Otherwise pattern and s are split on
// "." and matched segment by segment, where a "*" segment matches any
// single segment at that position — "prefix.*" matches "prefix.anything"
// but not "prefix.anything.more".
func Match(pattern, s string) bool {
	if pattern == "*" {
		return true
	}
	pSegs := strings.Split(pattern, ".")
	sSegs := strings.Split(s, ".")
	if len(pSegs) != len(sSegs) {
		return false
	}
	for i, ps := range pSegs {
		if ps == "*" {
			continue
		}
		if ps != sSegs[i] {
			return false
		}
	}
	return true
}
