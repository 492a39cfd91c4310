package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mcggEz/backend-gradalyze-capstone/internal/database"
)

// CertificateSet is the certificate bookkeeping state of one user row:
// parallel path/URL arrays, their count, and the denormalized latest-upload
// pointer. Count always equals len(Paths).
type CertificateSet struct {
	Paths      []string
	URLs       []string
	Count      int
	LatestPath string
	LatestURL  string
	LatestAt   *time.Time
}

// Append records an uploaded certificate, deduplicating by path: re-uploading
// the same path refreshes its URL in place while keeping the arrays aligned.
// The latest_* pointer always moves to the new upload.
func (c CertificateSet) Append(path, url string, now time.Time) CertificateSet {
	paths := append([]string(nil), c.Paths...)
	urls := append([]string(nil), c.URLs...)

	if idx := indexOf(paths, path); idx >= 0 {
		for len(urls) < idx {
			urls = append(urls, "")
		}
		if idx < len(urls) {
			urls[idx] = url
		} else {
			urls = append(urls, url)
		}
	} else {
		paths = append(paths, path)
		urls = append(urls, url)
	}

	return CertificateSet{
		Paths:      paths,
		URLs:       urls,
		Count:      len(paths),
		LatestPath: path,
		LatestURL:  url,
		LatestAt:   &now,
	}
}

// Remove drops the certificate matching path or URL. The frontend sometimes
// sends a full URL in the path field, so matching falls back to a trailing
// path segment comparison. Returns the removed storage path ("" when nothing
// matched) alongside the updated set.
func (c CertificateSet) Remove(path, url string) (CertificateSet, string) {
	paths := append([]string(nil), c.Paths...)
	urls := append([]string(nil), c.URLs...)

	target := -1
	if path != "" {
		if idx := indexOf(paths, path); idx >= 0 {
			target = idx
		} else {
			for i, p := range paths {
				if p != "" && strings.HasSuffix(path, "/"+p) {
					target = i
					break
				}
			}
		}
	} else if url != "" {
		if idx := indexOf(urls, url); idx >= 0 {
			target = idx
		} else {
			for i, u := range urls {
				if u != "" && strings.HasSuffix(u, "/"+url) {
					target = i
					break
				}
			}
		}
	}

	if target < 0 {
		return c, ""
	}

	removedPath := ""
	if target < len(paths) {
		removedPath = paths[target]
		paths = append(paths[:target], paths[target+1:]...)
	}
	if target < len(urls) {
		urls = append(urls[:target], urls[target+1:]...)
	}

	updated := CertificateSet{
		Paths:      paths,
		URLs:       urls,
		Count:      len(paths),
		LatestPath: c.LatestPath,
		LatestURL:  c.LatestURL,
		LatestAt:   c.LatestAt,
	}

	// Clear the latest pointer when it referenced the removed entry or when
	// nothing is left.
	if removedPath != "" && (updated.LatestPath == removedPath || strings.HasSuffix(updated.LatestPath, "/"+removedPath)) {
		updated.LatestPath = ""
		updated.LatestURL = ""
		updated.LatestAt = nil
	}
	if len(paths) == 0 {
		updated.LatestPath = ""
		updated.LatestURL = ""
		updated.LatestAt = nil
	}

	return updated, removedPath
}

func indexOf(list []string, v string) int {
	for i, item := range list {
		if item == v {
			return i
		}
	}
	return -1
}

// RecordCertificateUpload appends an uploaded certificate to the user's set
// and writes the whole group back in one statement.
func (s *ProfileService) RecordCertificateUpload(ctx context.Context, role string, claims database.JWTClaims, userID int64, path, url string) (CertificateSet, error) {
	return database.ExecuteWithRLS(ctx, s.db, role, claims, func(tx pgx.Tx) (CertificateSet, error) {
		current, err := loadCertificateSet(ctx, tx, userID)
		if err != nil {
			return CertificateSet{}, err
		}
		updated := current.Append(path, url, time.Now().UTC())
		if err := storeCertificateSet(ctx, tx, userID, updated); err != nil {
			return CertificateSet{}, err
		}
		return updated, nil
	})
}

// DeleteCertificate removes one certificate from the user's set. The removed
// storage path is returned so the caller can delete the object afterwards;
// the row update and the object delete are independent operations with no
// transactional linkage.
func (s *ProfileService) DeleteCertificate(ctx context.Context, role string, claims database.JWTClaims, userID int64, path, url string) (string, error) {
	return database.ExecuteWithRLS(ctx, s.db, role, claims, func(tx pgx.Tx) (string, error) {
		current, err := loadCertificateSet(ctx, tx, userID)
		if err != nil {
			return "", err
		}
		updated, removed := current.Remove(path, url)
		if removed == "" {
			return "", nil
		}
		if err := storeCertificateSet(ctx, tx, userID, updated); err != nil {
			return "", err
		}
		return removed, nil
	})
}

func loadCertificateSet(ctx context.Context, tx pgx.Tx, userID int64) (CertificateSet, error) {
	var set CertificateSet
	var count *int
	var latestPath, latestURL *string
	err := tx.QueryRow(ctx, `
		SELECT certificate_paths, certificate_urls, certificates_count,
		       latest_certificate_path, latest_certificate_url, latest_certificate_uploaded_at
		FROM public.users WHERE id = $1
	`, userID).Scan(&set.Paths, &set.URLs, &count, &latestPath, &latestURL, &set.LatestAt)
	if err != nil {
		return CertificateSet{}, fmt.Errorf("load certificates: %w", err)
	}
	if count != nil {
		set.Count = *count
	}
	if latestPath != nil {
		set.LatestPath = *latestPath
	}
	if latestURL != nil {
		set.LatestURL = *latestURL
	}
	return set, nil
}

func storeCertificateSet(ctx context.Context, tx pgx.Tx, userID int64, set CertificateSet) error {
	nullable := func(v string) *string {
		if v == "" {
			return nil
		}
		return &v
	}
	_, err := tx.Exec(ctx, `
		UPDATE public.users SET
			certificate_paths = $1,
			certificate_urls = $2,
			certificates_count = $3,
			latest_certificate_path = $4,
			latest_certificate_url = $5,
			latest_certificate_uploaded_at = $6
		WHERE id = $7
	`, set.Paths, set.URLs, set.Count, nullable(set.LatestPath), nullable(set.LatestURL), set.LatestAt, userID)
	if err != nil {
		return fmt.Errorf("store certificates: %w", err)
	}
	return nil
}
