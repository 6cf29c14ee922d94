package rank

import (
	"errors"
	"sort"
	"testing"
)

func TestBetween(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"", ""},
		{"", "V"},
		{"V", ""},
		{"V", "W"},
		{"V", "V1"},
		{"1", "2"},
		{"z", ""},
		{"zzz", ""},
		{"", "1"},
		{"", "01"},
		{"a1", "a2"},
		{"Az", "B"},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			k, err := Between(tt.a, tt.b)
			if err != nil {
				t.Fatalf("Between(%q, %q) error: %v", tt.a, tt.b, err)
			}
			if err := Validate(k); err != nil {
				t.Fatalf("Between(%q, %q) = %q: %v", tt.a, tt.b, k, err)
			}
			if tt.a != "" && !(tt.a < k) {
				t.Errorf("Between(%q, %q) = %q, not above lower bound", tt.a, tt.b, k)
			}
			if tt.b != "" && !(k < tt.b) {
				t.Errorf("Between(%q, %q) = %q, not below upper bound", tt.a, tt.b, k)
			}
		})
	}
}

func TestBetweenRejectsBadInput(t *testing.T) {
	cases := [][2]string{
		{"b", "a"},
		{"a", "a"},
		{"a0", ""},
		{"", "a-"},
	}
	for _, c := range cases {
		if _, err := Between(c[0], c[1]); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Between(%q, %q) error = %v, want ErrInvalidKey", c[0], c[1], err)
		}
	}
}

func TestRepeatedInsertsStayOrdered(t *testing.T) {
	// Appending, prepending and bisecting the same gap many times must keep
	// producing strictly ordered valid keys.
	keys := []string{First()}
	for i := 0; i < 200; i++ {
		next, err := After(keys[len(keys)-1])
		if err != nil {
			t.Fatal(err)
		}
		keys = append(keys, next)
	}
	for i := 0; i < 200; i++ {
		prev, err := Before(keys[0])
		if err != nil {
			t.Fatal(err)
		}
		keys = append([]string{prev}, keys...)
	}
	lo, hi := keys[10], keys[11]
	for i := 0; i < 100; i++ {
		mid, err := Between(lo, hi)
		if err != nil {
			t.Fatal(err)
		}
		keys = append(keys, mid)
		hi = mid
	}

	if !sort.StringsAreSorted(keys[:401]) {
		t.Error("append/prepend sequence is not sorted")
	}
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if err := Validate(k); err != nil {
			t.Fatalf("invalid key %q: %v", k, err)
		}
		if seen[k] {
			t.Fatalf("duplicate key %q", k)
		}
		seen[k] = true
	}
}

func TestSpread(t *testing.T) {
	for _, n := range []int{1, 2, 61, 62, 500, 5000} {
		keys := Spread(n)
		if len(keys) != n {
			t.Fatalf("Spread(%d) returned %d keys", n, len(keys))
		}
		for i, k := range keys {
			if err := Validate(k); err != nil {
				t.Fatalf("Spread(%d)[%d] = %q: %v", n, i, k, err)
			}
			if i > 0 && keys[i-1] >= k {
				t.Fatalf("Spread(%d) not strictly ascending at %d: %q >= %q", n, i, keys[i-1], k)
			}
		}
		if _, err := Between(keys[0], keys[len(keys)-1]); n > 1 && err != nil {
			t.Fatalf("Spread(%d) keys do not bracket a gap: %v", n, err)
		}
	}
	if Spread(0) != nil {
		t.Error("Spread(0) should be nil")
	}
}
