package profile

import (
	"testing"
	"time"
)

func assertAligned(t *testing.T, set CertificateSet) {
	t.Helper()
	if len(set.Paths) != len(set.URLs) {
		t.Fatalf("parallel arrays misaligned: %d paths, %d urls", len(set.Paths), len(set.URLs))
	}
	if set.Count != len(set.Paths) {
		t.Fatalf("count %d does not match %d paths", set.Count, len(set.Paths))
	}
}

// ---------------------------------------------------------------------------
// Append
// ---------------------------------------------------------------------------

func TestCertificateSet_Append(t *testing.T) {
	now := time.Now()
	var set CertificateSet

	set = set.Append("7/cert-a.pdf", "https://cdn/certificates/7/cert-a.pdf", now)
	assertAligned(t, set)
	if set.Count != 1 {
		t.Errorf("expected count 1, got %d", set.Count)
	}
	if set.LatestPath != "7/cert-a.pdf" {
		t.Errorf("expected latest path to track the upload, got %q", set.LatestPath)
	}
	if set.LatestAt == nil || !set.LatestAt.Equal(now) {
		t.Errorf("expected latest timestamp %v, got %v", now, set.LatestAt)
	}

	set = set.Append("7/cert-b.pdf", "https://cdn/certificates/7/cert-b.pdf", now)
	assertAligned(t, set)
	if set.Count != 2 {
		t.Errorf("expected count 2, got %d", set.Count)
	}
	if set.LatestPath != "7/cert-b.pdf" {
		t.Errorf("expected latest pointer to move to newest upload, got %q", set.LatestPath)
	}
}

func TestCertificateSet_AppendDeduplicatesByPath(t *testing.T) {
	now := time.Now()
	set := CertificateSet{}.
		Append("7/cert-a.pdf", "https://cdn/old-url", now).
		Append("7/cert-a.pdf", "https://cdn/new-url", now)

	assertAligned(t, set)
	if set.Count != 1 {
		t.Fatalf("expected re-upload of same path to keep count 1, got %d", set.Count)
	}
	if set.URLs[0] != "https://cdn/new-url" {
		t.Errorf("expected URL refreshed in place, got %q", set.URLs[0])
	}
	if set.LatestURL != "https://cdn/new-url" {
		t.Errorf("expected latest URL updated, got %q", set.LatestURL)
	}
}

// ---------------------------------------------------------------------------
// Remove
// ---------------------------------------------------------------------------

func TestCertificateSet_RemoveByPath(t *testing.T) {
	now := time.Now()
	set := CertificateSet{}.
		Append("7/cert-a.pdf", "https://cdn/a", now).
		Append("7/cert-b.pdf", "https://cdn/b", now)

	updated, removed := set.Remove("7/cert-a.pdf", "")
	assertAligned(t, updated)
	if removed != "7/cert-a.pdf" {
		t.Fatalf("expected removed path '7/cert-a.pdf', got %q", removed)
	}
	if updated.Count != 1 || updated.Paths[0] != "7/cert-b.pdf" {
		t.Errorf("unexpected remaining set: %+v", updated)
	}
	// cert-b was the latest and survives
	if updated.LatestPath != "7/cert-b.pdf" {
		t.Errorf("expected latest pointer untouched, got %q", updated.LatestPath)
	}
}

func TestCertificateSet_RemoveByURL(t *testing.T) {
	now := time.Now()
	set := CertificateSet{}.Append("7/cert-a.pdf", "https://cdn/a", now)

	updated, removed := set.Remove("", "https://cdn/a")
	if removed != "7/cert-a.pdf" {
		t.Fatalf("expected removal by URL, got %q", removed)
	}
	assertAligned(t, updated)
	if updated.Count != 0 {
		t.Errorf("expected empty set, got %+v", updated)
	}
}

func TestCertificateSet_RemoveMatchesTrailingSegment(t *testing.T) {
	// The frontend sometimes sends the full public URL in the path field.
	now := time.Now()
	set := CertificateSet{}.Append("7/cert-a.pdf", "https://cdn/a", now)

	_, removed := set.Remove("https://cdn/storage/v1/object/public/certificates/7/cert-a.pdf", "")
	if removed != "7/cert-a.pdf" {
		t.Fatalf("expected trailing-segment match, got %q", removed)
	}
}

func TestCertificateSet_RemoveMissingIsNoOp(t *testing.T) {
	now := time.Now()
	set := CertificateSet{}.Append("7/cert-a.pdf", "https://cdn/a", now)

	updated, removed := set.Remove("7/nope.pdf", "")
	if removed != "" {
		t.Fatalf("expected no removal, got %q", removed)
	}
	if updated.Count != 1 {
		t.Errorf("expected set unchanged, got %+v", updated)
	}
}

func TestCertificateSet_RemoveClearsLatestPointer(t *testing.T) {
	now := time.Now()
	set := CertificateSet{}.
		Append("7/cert-a.pdf", "https://cdn/a", now).
		Append("7/cert-b.pdf", "https://cdn/b", now)

	// cert-b is the latest; removing it clears the pointer
	updated, removed := set.Remove("7/cert-b.pdf", "")
	if removed != "7/cert-b.pdf" {
		t.Fatal("expected cert-b removed")
	}
	if updated.LatestPath != "" || updated.LatestURL != "" || updated.LatestAt != nil {
		t.Errorf("expected latest pointer cleared, got %+v", updated)
	}
}

func TestCertificateSet_RemoveLastClearsEverything(t *testing.T) {
	now := time.Now()
	set := CertificateSet{}.Append("7/cert-a.pdf", "https://cdn/a", now)

	updated, _ := set.Remove("7/cert-a.pdf", "")
	assertAligned(t, updated)
	if updated.Count != 0 || updated.LatestPath != "" || updated.LatestAt != nil {
		t.Errorf("expected fully cleared set, got %+v", updated)
	}
}

// Alignment holds across arbitrary append/remove sequences.
func TestCertificateSet_AlignmentProperty(t *testing.T) {
	now := time.Now()
	var set CertificateSet

	ops := []struct {
		remove bool
		path   string
	}{
		{false, "7/a.pdf"},
		{false, "7/b.pdf"},
		{false, "7/c.pdf"},
		{true, "7/b.pdf"},
		{false, "7/a.pdf"}, // re-upload
		{true, "7/missing.pdf"},
		{true, "7/a.pdf"},
		{true, "7/c.pdf"},
		{false, "7/d.pdf"},
	}
	for _, op := range ops {
		if op.remove {
			set, _ = set.Remove(op.path, "")
		} else {
			set = set.Append(op.path, "https://cdn/"+op.path, now)
		}
		assertAligned(t, set)
	}
	if set.Count != 1 || set.Paths[0] != "7/d.pdf" {
		t.Errorf("unexpected final set: %+v", set)
	}
}
