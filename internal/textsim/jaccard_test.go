package textsim

import "testing"

func TestJaccardIdentical(t *testing.T) {
	score := Jaccard("quantum computing basics", "quantum computing basics")
	if score != 1.0 {
		t.Errorf("expected 1.0 for identical queries, got %f", score)
	}
}

func TestJaccardCaseInsensitive(t *testing.T) {
	score := Jaccard("Quantum Computing", "quantum computing")
	if score != 1.0 {
		t.Errorf("expected 1.0 for case-differing queries, got %f", score)
	}
}

func TestJaccardDisjoint(t *testing.T) {
	score := Jaccard("alpha beta gamma", "delta epsilon zeta")
	if score != 0 {
		t.Errorf("expected 0 for disjoint token sets, got %f", score)
	}
}

func TestJaccardPartialOverlap(t *testing.T) {
	// Intersection {b, c} = 2, union {a, b, c, d} = 4.
	score := Jaccard("a b c", "b c d")
	if score != 0.5 {
		t.Errorf("expected 0.5, got %f", score)
	}
}

func TestJaccardEmpty(t *testing.T) {
	if score := Jaccard("", ""); score != 0 {
		t.Errorf("expected 0 for two empty texts, got %f", score)
	}
	if score := Jaccard("something", ""); score != 0 {
		t.Errorf("expected 0 against an empty text, got %f", score)
	}
}

func TestTokensDeduplicate(t *testing.T) {
	set := Tokens("go go go stop")
	if len(set) != 2 {
		t.Errorf("expected 2 unique tokens, got %d", len(set))
	}
}
