package ids

import "testing"

func TestNewUniqueAndOrdered(t *testing.T) {
	const n = 1000
	seen := make(map[string]bool, n)
	prev := ""
	for i := 0; i < n; i++ {
		id := New()
		if len(id) != 26 {
			t.Fatalf("unexpected id length: %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id: %s", id)
		}
		seen[id] = true
		if prev != "" && id <= prev {
			t.Fatalf("ids must be lexicographically increasing: %s after %s", id, prev)
		}
		prev = id
	}
}
