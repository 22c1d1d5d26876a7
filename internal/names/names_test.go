package names

import (
	"strings"
	"testing"
)

func TestRandom(t *testing.T) {
	for i := 0; i < 100; i++ {
		name := Random()
		parts := strings.Split(name, " ")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			t.Fatalf("unexpected name %q", name)
		}
	}
}
