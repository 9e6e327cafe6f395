package reason

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFirstNRuneBoundary(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("日", 8) // 3 bytes per rune
	for n := 0; n <= len(s); n++ {
		got := firstN(s, n)
		if len(got) > n {
			t.Fatalf("firstN(%d) returned %d bytes", n, len(got))
		}
		if !utf8.ValidString(got) {
			t.Fatalf("firstN(%d) split a rune: %q", n, got)
		}
	}

	if got := firstN("short", 200); got != "short" {
		t.Fatalf("short string changed: %q", got)
	}
}
