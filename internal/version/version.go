// Package version orders the version strings of recipe references.
//
// Versions that parse as semantic versions are compared with semver
// precedence; anything else ("1.1.1w", "2024-03", "r42") falls back to the
// GNU version sort ordering used by `sort -V`.
package version

import (
	"slices"

	mm "github.com/Masterminds/semver/v3"
)

// Compare compares two version strings and returns:
// -1 if a < b
//
//	0 if a == b
//	1 if a > b
func Compare(a, b string) int {
	va, erra := mm.StrictNewVersion(a)
	vb, errb := mm.StrictNewVersion(b)
	if erra == nil && errb == nil {
		return va.Compare(vb)
	}
	return sign(verrevcmp([]byte(a), []byte(b)))
}

// Sort sorts vers in ascending order.
func Sort(vers []string) {
	slices.SortStableFunc(vers, Compare)
}

// Latest returns the highest version of vers, or "" if vers is empty.
func Latest(vers []string) string {
	if len(vers) == 0 {
		return ""
	}
	return slices.MaxFunc(vers, Compare)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// verrevcmp compares character and numeric segments separately, numeric
// segments by value (GNU filevercmp).
func verrevcmp(s1, s2 []byte) int {
	s1Len, s2Len := len(s1), len(s2)
	s1Pos, s2Pos := 0, 0

	for s1Pos < s1Len || s2Pos < s2Len {
		firstDiff := 0

		for (s1Pos < s1Len && !isDigit(s1[s1Pos])) || (s2Pos < s2Len && !isDigit(s2[s2Pos])) {
			var s1c, s2c byte
			if s1Pos < s1Len {
				s1c = s1[s1Pos]
			}
			if s2Pos < s2Len {
				s2c = s2[s2Pos]
			}
			if o1, o2 := order(s1c), order(s2c); o1 != o2 {
				return o1 - o2
			}
			s1Pos++
			s2Pos++
		}

		for s1Pos < s1Len && s1[s1Pos] == '0' {
			s1Pos++
		}
		for s2Pos < s2Len && s2[s2Pos] == '0' {
			s2Pos++
		}

		for s1Pos < s1Len && s2Pos < s2Len && isDigit(s1[s1Pos]) && isDigit(s2[s2Pos]) {
			if firstDiff == 0 {
				firstDiff = int(s1[s1Pos]) - int(s2[s2Pos])
			}
			s1Pos++
			s2Pos++
		}

		// the longer number is larger
		if s1Pos < s1Len && isDigit(s1[s1Pos]) {
			return 1
		}
		if s2Pos < s2Len && isDigit(s2[s2Pos]) {
			return -1
		}
		if firstDiff != 0 {
			return firstDiff
		}
	}
	return 0
}

// order returns the sorting priority of a character:
// digits and NUL 0, letters their ASCII value, '~' -1, others ASCII + 256.
func order(c byte) int {
	switch {
	case isDigit(c), c == 0:
		return 0
	case isAlpha(c):
		return int(c)
	case c == '~':
		return -1
	}
	return int(c) + 256
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
