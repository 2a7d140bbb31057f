package parser

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Cursor walks a record left to right, consuming one numeric field per
// call. Fields that fail to parse yield zero and leave the cursor where
// it was, so a truncated or corrupt record degrades to zeros instead of
// failing.
type Cursor struct {
	s   string
	pos int
}

// NewCursor returns a cursor positioned at the start of s.
func NewCursor(s string) *Cursor {
	return &Cursor{s: s}
}

// Int consumes an integer in the given base (10 or 16).
func (c *Cursor) Int(base int) int64 {
	v, n := ParseInt(c.s[c.pos:], base)
	c.pos += n
	return v
}

// Float consumes a floating point number.
func (c *Cursor) Float() float32 {
	v, n := ParseFloat(c.s[c.pos:])
	c.pos += n
	return v
}

// Floats consumes n floats.
func (c *Cursor) Floats(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = c.Float()
	}
	return out
}

// Rest returns everything after the cursor without consuming it.
func (c *Cursor) Rest() string {
	return c.s[c.pos:]
}

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int {
	return c.pos
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

func skipSpace(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

func skipSign(s string, i int) int {
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	return i
}

func digitVal(b byte) int {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0')
	case b >= 'a' && b <= 'z':
		return int(b-'a') + 10
	case b >= 'A' && b <= 'Z':
		return int(b-'A') + 10
	}
	return 99
}

func hasHexPrefix(s string, i int) bool {
	return i+2 < len(s) && s[i] == '0' && (s[i+1] == 'x' || s[i+1] == 'X') && digitVal(s[i+2]) < 16
}

// ParseInt parses the longest integer prefix of s and returns the value
// and the number of bytes consumed. Leading whitespace and a sign are
// accepted, and base 16 also accepts a 0x prefix. When no digits follow,
// it returns (0, 0). Out of range values saturate.
func ParseInt(s string, base int) (int64, int) {
	i := skipSpace(s, 0)
	neg := i < len(s) && s[i] == '-'
	i = skipSign(s, i)
	if base == 16 && hasHexPrefix(s, i) {
		i += 2
	}

	start := i
	var v uint64
	overflow := false
	for i < len(s) {
		d := digitVal(s[i])
		if d >= base {
			break
		}
		if !overflow {
			if v > (math.MaxUint64-uint64(d))/uint64(base) {
				overflow = true
			} else {
				v = v*uint64(base) + uint64(d)
			}
		}
		i++
	}
	if i == start {
		return 0, 0
	}

	switch {
	case neg && (overflow || v > 1<<63):
		return math.MinInt64, i
	case neg:
		return -int64(v), i
	case overflow || v > math.MaxInt64:
		return math.MaxInt64, i
	}
	return int64(v), i
}

// ParseFloat parses the longest floating point prefix of s, accepting
// decimal and hexadecimal notation as well as inf, infinity and nan.
// It returns the value and the number of bytes consumed, or (0, 0) when
// s does not start with a number.
func ParseFloat(s string) (float32, int) {
	start := skipSpace(s, 0)
	i := skipSign(s, start)

	if n := matchWord(s[i:]); n > 0 {
		if s[i]|0x20 == 'n' {
			return float32(math.NaN()), i + n
		}
		sign := 1
		if s[start] == '-' {
			sign = -1
		}
		return float32(math.Inf(sign)), i + n
	}

	hex := hasHexPrefix(s, i) || (i+3 < len(s) && s[i] == '0' && (s[i+1]|0x20) == 'x' && s[i+2] == '.' && digitVal(s[i+3]) < 16)
	base := 10
	if hex {
		i += 2
		base = 16
	}

	mantissa := 0
	for i < len(s) && digitVal(s[i]) < base {
		i++
		mantissa++
	}
	if i < len(s) && s[i] == '.' {
		j := i + 1
		for j < len(s) && digitVal(s[j]) < base {
			j++
			mantissa++
		}
		i = j
	}
	if mantissa == 0 {
		return 0, 0
	}

	expMark := byte('e')
	if hex {
		expMark = 'p'
	}
	hasExp := false
	if i < len(s) && s[i]|0x20 == expMark {
		j := skipSign(s, i+1)
		k := j
		for k < len(s) && s[k] >= '0' && s[k] <= '9' {
			k++
		}
		if k > j {
			i = k
			hasExp = true
		}
	}

	text := s[start:i]
	if hex && !hasExp {
		text += "p0"
	}
	v, err := strconv.ParseFloat(text, 32)
	var numErr *strconv.NumError
	if err != nil && !(errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange)) {
		return 0, 0
	}
	return float32(v), i
}

// matchWord returns the length of an inf, infinity or nan token at the
// start of s, or 0.
func matchWord(s string) int {
	lower := strings.ToLower(s[:min(len(s), 8)])
	switch {
	case strings.HasPrefix(lower, "infinity"):
		return 8
	case strings.HasPrefix(lower, "inf"):
		return 3
	case strings.HasPrefix(lower, "nan"):
		n := 3
		if j := strings.IndexByte(s[3:], ')'); len(s) > 3 && s[3] == '(' && j > 0 && validNanPayload(s[4:3+j]) {
			n += j + 1
		}
		return n
	}
	return 0
}

func validNanPayload(s string) bool {
	for i := 0; i < len(s); i++ {
		if digitVal(s[i]) > 35 && s[i] != '_' {
			return false
		}
	}
	return true
}
