package storage

import (
	"testing"
)

// ---------------------------------------------------------------------------
// AllowedBucket
// ---------------------------------------------------------------------------

func TestAllowedBucket(t *testing.T) {
	if !AllowedBucket(BucketTOR) {
		t.Error("expected tor bucket to be allowed")
	}
	if !AllowedBucket(BucketCertificates) {
		t.Error("expected certificates bucket to be allowed")
	}

	for _, bucket := range []string{"", "avatars", "TOR", "certificates2", "public"} {
		if AllowedBucket(bucket) {
			t.Errorf("expected bucket %q to be rejected", bucket)
		}
	}
}

// ---------------------------------------------------------------------------
// SanitizeObjectName
// ---------------------------------------------------------------------------

func TestSanitizeObjectName(t *testing.T) {
	tests := []struct {
		in       string
		fallback string
		want     string
	}{
		{"transcript.pdf", "document", "transcript.pdf"},
		{"my transcript (final).pdf", "document", "my-transcript--final-.pdf"},
		{"../../etc/passwd", "document", "..-..-etc-passwd"},
		{"résumé.pdf", "document", "r-sum-.pdf"},
		{"---", "document", "document"},
		{"", "document", "document"},
		{"UPPER_case-1.PNG", "document", "UPPER_case-1.PNG"},
	}

	for _, tt := range tests {
		got := SanitizeObjectName(tt.in, tt.fallback)
		if got != tt.want {
			t.Errorf("SanitizeObjectName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// PublicURL
// ---------------------------------------------------------------------------

func TestPublicURL(t *testing.T) {
	s := &ObjectStore{publicURL: "https://api.gradalyze.test"}

	got := s.PublicURL(BucketTOR, "7/transcript.pdf")
	want := "https://api.gradalyze.test/storage/v1/object/public/tor/7/transcript.pdf"
	if got != want {
		t.Errorf("PublicURL = %q, want %q", got, want)
	}
}

// ---------------------------------------------------------------------------
// Upload/Remove need a live S3 endpoint and database.
// ---------------------------------------------------------------------------

// TestUpload_RecordsObjectRow documents that a successful PutObject is
// followed by an upsert into storage.objects under the caller's principal.
func TestUpload_RecordsObjectRow_Documentation(t *testing.T) {
	t.Skip("requires S3 endpoint and database connection -- integration test")
}

// TestUpload_RejectedForDisallowedBucket documents that the storage policies
// reject object rows outside the certificates and tor buckets.
func TestUpload_RejectedForDisallowedBucket_Documentation(t *testing.T) {
	t.Skip("requires S3 endpoint and database connection -- integration test")
}
