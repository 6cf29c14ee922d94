// Package rank generates lexicographic order keys for board columns.
//
// A key is a non-empty string over the base-62 alphabet 0-9A-Za-z that never
// ends in '0'. Keys compare with plain byte ordering, so the database column
// holding them must use a binary collation. Between always finds a key
// strictly inside an interval, which lets a single row move without
// renumbering its neighbours.
package rank

import (
	"errors"
	"fmt"
	"strings"
)

const digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// ErrInvalidKey reports a malformed key or an empty interval.
var ErrInvalidKey = errors.New("invalid rank key")

// First is the key given to the first item of an empty column.
func First() string {
	k, _ := Between("", "")
	return k
}

// After returns a key greater than a.
func After(a string) (string, error) {
	return Between(a, "")
}

// Before returns a key less than b.
func Before(b string) (string, error) {
	return Between("", b)
}

// Between returns a key k with a < k < b. An empty a means no lower bound
// and an empty b means no upper bound.
func Between(a, b string) (string, error) {
	if a != "" {
		if err := Validate(a); err != nil {
			return "", err
		}
	}
	if b != "" {
		if err := Validate(b); err != nil {
			return "", err
		}
		if a >= b {
			return "", fmt.Errorf("%w: %q is not below %q", ErrInvalidKey, a, b)
		}
	}
	return midpoint(a, b), nil
}

// Validate checks the alphabet and the no-trailing-zero rule.
func Validate(k string) error {
	if k == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for i := 0; i < len(k); i++ {
		if strings.IndexByte(digits, k[i]) < 0 {
			return fmt.Errorf("%w: %q has character %q", ErrInvalidKey, k, k[i])
		}
	}
	if k[len(k)-1] == '0' {
		return fmt.Errorf("%w: %q ends in zero", ErrInvalidKey, k)
	}
	return nil
}

// midpoint treats keys as base-62 fractions. b == "" stands for 1.0.
func midpoint(a, b string) string {
	if b != "" {
		n := 0
		for digitAt(a, n) == b[n] {
			n++
		}
		if n > 0 {
			return b[:n] + midpoint(tail(a, n), b[n:])
		}
	}

	da := 0
	if a != "" {
		da = strings.IndexByte(digits, a[0])
	}
	db := len(digits)
	if b != "" {
		db = strings.IndexByte(digits, b[0])
	}

	if db-da > 1 {
		return string(digits[(da+db+1)/2])
	}
	if len(b) > 1 {
		return b[:1]
	}
	return string(digits[da]) + midpoint(tail(a, 1), "")
}

func digitAt(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return '0'
}

func tail(s string, n int) string {
	if n >= len(s) {
		return ""
	}
	return s[n:]
}

// Spread returns n ascending keys spaced evenly across the key space. It is
// used to rebalance a column whose keys have collided.
func Spread(n int) []string {
	if n <= 0 {
		return nil
	}
	base := uint64(len(digits))
	width := 1
	space := base
	for space < 2*uint64(n+1) {
		width++
		space *= base
	}
	step := space / uint64(n+1)

	keys := make([]string, n)
	buf := make([]byte, width)
	for i := range keys {
		v := uint64(i+1) * step
		for j := width - 1; j >= 0; j-- {
			buf[j] = digits[v%base]
			v /= base
		}
		keys[i] = strings.TrimRight(string(buf), "0")
	}
	return keys
}
