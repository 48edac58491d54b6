package persona

import (
	"strings"
	"testing"
)

func TestGetKnownPresets(t *testing.T) {
	for _, id := range []string{"friendly", "motivational", "crypto", "zen", "witty"} {
		p, err := Get(id)
		if err != nil {
			t.Errorf("Get(%q): %v", id, err)
			continue
		}
		if p.ID != id {
			t.Errorf("Get(%q).ID = %q", id, p.ID)
		}
		if p.Prompt == "" || p.Name == "" {
			t.Errorf("Get(%q) returned incomplete preset: %+v", id, p)
		}
		// Every preset must carry the SKIP escape hatch.
		if !strings.Contains(p.Prompt, "SKIP") {
			t.Errorf("preset %q prompt lacks the SKIP instruction", id)
		}
	}
}

func TestGetUnknown(t *testing.T) {
	if _, err := Get("pirate"); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestNamesSorted(t *testing.T) {
	names := Names()
	if len(names) != 5 {
		t.Fatalf("got %d presets, want 5", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("names not sorted: %v", names)
			break
		}
	}
}
