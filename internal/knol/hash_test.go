package knol

import "testing"

func TestNormalize(t *testing.T) {
	expected := "what is htmx?\na library"
	normalized := Normalize("  What is HTMX?\r\nA library \r\n")

	if normalized != expected {
		t.Errorf("Expected normalized string to be '%s', but got '%s'", expected, normalized)
	}
}

func TestContains(t *testing.T) {
	testCases := []struct {
		name string
		text string
		term string
		want bool
	}{
		{"empty term", "anything", "", true},
		{"blank term", "anything", "   ", true},
		{"case insensitive", "Photosynthesis", "SYNTH", true},
		{"no match", "Mitochondria", "chloro", false},
		{"term padded", "cell wall", "  wall ", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Contains(tc.text, tc.term); got != tc.want {
				t.Errorf("Contains(%q, %q) = %v, want %v", tc.text, tc.term, got, tc.want)
			}
		})
	}
}

func TestHash(t *testing.T) {
	t.Run("generates correct hash", func(t *testing.T) {
		// Hash for "q\na\nc"
		expectedHash := "eb2456c1ee4f36305069dd0f63a30e92d5443129f5e8fd9a5ec490fbc4d4d8a2"
		hash := Hash("Q", "A", "C")

		if hash != expectedHash {
			t.Errorf("Expected hash '%s', but got '%s'", expectedHash, hash)
		}
	})

	t.Run("normalization produces same hash", func(t *testing.T) {
		if Hash("  what is go? ") != Hash("What Is Go?") {
			t.Error("Expected hashes to be the same after normalization, but they were different.")
		}
	})
}

func TestBlockID(t *testing.T) {
	a := BlockID("doc", "Cell :: unit of life", 0)
	if len(a) != 16 {
		t.Fatalf("Expected a 16 character id, but got %q", a)
	}
	if a != BlockID("doc", "Cell :: unit of life", 0) {
		t.Error("Expected block ids to be deterministic")
	}
	if a == BlockID("doc", "Cell :: unit of life", 1) {
		t.Error("Expected repeated lines to get distinct ids")
	}
	if a == BlockID("other", "Cell :: unit of life", 0) {
		t.Error("Expected ids to differ between documents")
	}
	if DocumentID(1, "bio.md") == DocumentID(2, "bio.md") {
		t.Error("Expected document ids to differ between sources")
	}
}
