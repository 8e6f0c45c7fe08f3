package recognition

import (
	"testing"
)

func newTestMatcher() *Matcher {
	return NewMatcher(NewComparator(DefaultMatchThreshold))
}

func TestFindBestMatchEmptyGallery(t *testing.T) {
	m := newTestMatcher()
	if _, found := m.FindBestMatch(testEmbedding(0.1), nil, 0.5); found {
		t.Error("FindBestMatch on empty gallery found a match")
	}
}

func TestFindBestMatchExact(t *testing.T) {
	m := newTestMatcher()
	query := testEmbedding(0.3, -0.1, 0.7)

	gallery := []GalleryEntry{
		{IdentityID: 1, Name: "alice", Embedding: testEmbedding(5, 5, 5)},
		{IdentityID: 2, Name: "bob", Embedding: testEmbedding(0.3, -0.1, 0.7)},
	}

	best, found := m.FindBestMatch(query, gallery, 0.95)
	if !found {
		t.Fatal("FindBestMatch found no match for exact gallery entry")
	}
	if best.IdentityID != 2 || best.Name != "bob" {
		t.Errorf("best match = %+v, want identity 2 (bob)", best)
	}
	if best.Confidence < 0.95 {
		t.Errorf("confidence = %v, want >= 0.95", best.Confidence)
	}
}

func TestFindBestMatchPoolsPerIdentity(t *testing.T) {
	m := newTestMatcher()
	query := testEmbedding(0.5)

	// Identity 1 is enrolled from two angles: one mediocre and one close.
	// The identity must win on its best angle.
	gallery := []GalleryEntry{
		{IdentityID: 1, Name: "alice", CaptureAngle: "left", Embedding: testEmbedding(0.5, 0.45)},
		{IdentityID: 1, Name: "alice", CaptureAngle: "frontal", Embedding: testEmbedding(0.5, 0.01)},
		{IdentityID: 2, Name: "bob", Embedding: testEmbedding(0.5, 0.3)},
	}

	best, found := m.FindBestMatch(query, gallery, 0.5)
	if !found {
		t.Fatal("FindBestMatch found no match")
	}
	if best.IdentityID != 1 {
		t.Errorf("best identity = %d, want 1", best.IdentityID)
	}

	// The pooled confidence must come from the frontal (closest) entry.
	_, frontalConfidence := m.Comparator().Compare(gallery[1].Embedding, query)
	if best.Confidence != frontalConfidence {
		t.Errorf("pooled confidence = %v, want best-angle confidence %v", best.Confidence, frontalConfidence)
	}
}

func TestFindBestMatchBelowThreshold(t *testing.T) {
	m := newTestMatcher()
	query := testEmbedding(0.55) // third band, confidence < 0.80

	gallery := []GalleryEntry{
		{IdentityID: 1, Name: "alice", Embedding: testEmbedding()},
	}

	if _, found := m.FindBestMatch(query, gallery, 0.85); found {
		t.Error("FindBestMatch returned a match below the confidence threshold")
	}
	if _, found := m.FindBestMatch(query, gallery, 0.5); !found {
		t.Error("FindBestMatch rejected a match above the confidence threshold")
	}
}

func TestFindAllMatchesOrderingAndTruncation(t *testing.T) {
	m := newTestMatcher()
	query := testEmbedding()

	gallery := []GalleryEntry{
		{IdentityID: 1, Name: "alice", Embedding: testEmbedding(0.4)},
		{IdentityID: 2, Name: "bob", Embedding: testEmbedding(0.1)},
		{IdentityID: 3, Name: "carol", Embedding: testEmbedding(0.55)},
		{IdentityID: 4, Name: "dave", Embedding: testEmbedding(5)}, // no match
	}

	matches := m.FindAllMatches(query, gallery, 2)
	if len(matches) != 2 {
		t.Fatalf("len(matches) = %d, want 2", len(matches))
	}
	if matches[0].IdentityID != 2 {
		t.Errorf("first match identity = %d, want 2 (closest)", matches[0].IdentityID)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Confidence > matches[i-1].Confidence {
			t.Errorf("confidences not non-increasing: %v", matches)
		}
	}
}

func TestFindAllMatchesKeepsDuplicateIdentities(t *testing.T) {
	m := newTestMatcher()
	query := testEmbedding()

	// The similarity-search path does not deduplicate by identity.
	gallery := []GalleryEntry{
		{IdentityID: 1, Name: "alice", Embedding: testEmbedding(0.1)},
		{IdentityID: 1, Name: "alice", Embedding: testEmbedding(0.2)},
	}

	matches := m.FindAllMatches(query, gallery, 0)
	if len(matches) != 2 {
		t.Errorf("len(matches) = %d, want 2 (entries, not identities)", len(matches))
	}
}
