package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcggEz/backend-gradalyze-capstone/internal/database"
)

// ProfileService mutates the grades, TOR and certificate column groups of the
// users table. Every operation runs under the caller's principal through
// ExecuteWithRLS; the stored procedures are SECURITY DEFINER, so they succeed
// for principals with execute privilege regardless of row visibility, while
// direct table operations stay subject to the email-matching policies.
type ProfileService struct {
	db *pgxpool.Pool
}

func NewProfileService(db *pgxpool.Pool) *ProfileService {
	return &ProfileService{db: db}
}

// ClearTORByEmail invokes public.clear_tor_by_email. Returns true when a row
// with that email existed (the TOR and archetype groups are now null), false
// when no row matched. Grades and certificate columns are never touched.
func (s *ProfileService) ClearTORByEmail(ctx context.Context, role string, claims database.JWTClaims, email string) (bool, error) {
	return database.ExecuteWithRLS(ctx, s.db, role, claims, func(tx pgx.Tx) (bool, error) {
		var cleared bool
		err := tx.QueryRow(ctx, `SELECT public.clear_tor_by_email($1)`, email).Scan(&cleared)
		if err != nil {
			return false, fmt.Errorf("clear_tor_by_email: %w", err)
		}
		return cleared, nil
	})
}

// UpdateGrades invokes public.update_user_grades: the grades column is
// replaced wholesale and updated_at refreshed. A user id matching no row is
// silent success — the procedure gives no existence signal.
func (s *ProfileService) UpdateGrades(ctx context.Context, role string, claims database.JWTClaims, userID int64, grades json.RawMessage) error {
	_, err := database.ExecuteWithRLS(ctx, s.db, role, claims, func(tx pgx.Tx) (struct{}, error) {
		_, err := tx.Exec(ctx, `SELECT public.update_user_grades($1, $2)`, userID, grades)
		if err != nil {
			return struct{}{}, fmt.Errorf("update_user_grades: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// GetGrades invokes public.get_user_grades. A nil result means either the row
// does not exist or its grades column is null; the two are indistinguishable
// by design.
func (s *ProfileService) GetGrades(ctx context.Context, role string, claims database.JWTClaims, userID int64) (json.RawMessage, error) {
	return database.ExecuteWithRLS(ctx, s.db, role, claims, func(tx pgx.Tx) (json.RawMessage, error) {
		var grades json.RawMessage
		err := tx.QueryRow(ctx, `SELECT public.get_user_grades($1)`, userID).Scan(&grades)
		if err != nil {
			return nil, fmt.Errorf("get_user_grades: %w", err)
		}
		return grades, nil
	})
}

// AddGrade appends one grade record, replacing any existing record with the
// same id. Read-modify-write of the whole array, like every grades mutation.
func (s *ProfileService) AddGrade(ctx context.Context, role string, claims database.JWTClaims, userID int64, grade GradeRecord) ([]GradeRecord, error) {
	current, err := s.GetGrades(ctx, role, claims, userID)
	if err != nil {
		return nil, err
	}
	grades, err := decodeGrades(current)
	if err != nil {
		return nil, err
	}

	updated := replaceGradeByID(grades, grade)
	encoded, err := json.Marshal(updated)
	if err != nil {
		return nil, fmt.Errorf("encode grades: %w", err)
	}
	if err := s.UpdateGrades(ctx, role, claims, userID, encoded); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteGrade removes the grade record with the given id, if present.
func (s *ProfileService) DeleteGrade(ctx context.Context, role string, claims database.JWTClaims, userID int64, gradeID int64) ([]GradeRecord, error) {
	current, err := s.GetGrades(ctx, role, claims, userID)
	if err != nil {
		return nil, err
	}
	grades, err := decodeGrades(current)
	if err != nil {
		return nil, err
	}

	updated := removeGradeByID(grades, gradeID)
	encoded, err := json.Marshal(updated)
	if err != nil {
		return nil, fmt.Errorf("encode grades: %w", err)
	}
	if err := s.UpdateGrades(ctx, role, claims, userID, encoded); err != nil {
		return nil, err
	}
	return updated, nil
}

// RecordTORUpload points the TOR columns at a freshly uploaded transcript and
// nulls the archetype/analysis group in the same statement, so a stale
// analysis can never outlive the upload it was computed from.
func (s *ProfileService) RecordTORUpload(ctx context.Context, role string, claims database.JWTClaims, userID int64, publicURL, storagePath string) error {
	_, err := database.ExecuteWithRLS(ctx, s.db, role, claims, func(tx pgx.Tx) (struct{}, error) {
		_, err := tx.Exec(ctx, `
			UPDATE public.users SET
				tor_url = $1,
				tor_storage_path = $2,
				tor_notes = NULL,
				tor_uploaded_at = NOW(),
				primary_archetype = NULL,
				archetype_analyzed_at = NULL,
				archetype_realistic_percentage = NULL,
				archetype_investigative_percentage = NULL,
				archetype_artistic_percentage = NULL,
				archetype_social_percentage = NULL,
				archetype_enterprising_percentage = NULL,
				archetype_conventional_percentage = NULL,
				career_recommendations = NULL,
				analysis_results = NULL
			WHERE id = $3
		`, publicURL, storagePath, userID)
		if err != nil {
			return struct{}{}, fmt.Errorf("record tor upload: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// TORPointer is the currently recorded transcript location for a user.
type TORPointer struct {
	UserID      int64
	StoragePath string
	URL         string
}

// CurrentTOR returns the stored transcript pointer for a user id. Only one
// transcript per user is kept; the caller deletes the previous storage object
// before recording a replacement.
func (s *ProfileService) CurrentTOR(ctx context.Context, role string, claims database.JWTClaims, userID int64) (*TORPointer, error) {
	return database.ExecuteWithRLS(ctx, s.db, role, claims, func(tx pgx.Tx) (*TORPointer, error) {
		p := TORPointer{UserID: userID}
		var path, url *string
		err := tx.QueryRow(ctx, `SELECT tor_storage_path, tor_url FROM public.users WHERE id = $1`, userID).Scan(&path, &url)
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("current tor: %w", err)
		}
		if path != nil {
			p.StoragePath = *path
		}
		if url != nil {
			p.URL = *url
		}
		return &p, nil
	})
}

// LookupUserID resolves an email to a user id. Returns 0 when no row matches.
func (s *ProfileService) LookupUserID(ctx context.Context, role string, claims database.JWTClaims, email string) (int64, error) {
	return database.ExecuteWithRLS(ctx, s.db, role, claims, func(tx pgx.Tx) (int64, error) {
		var id int64
		err := tx.QueryRow(ctx, `SELECT id FROM public.users WHERE email = $1`, email).Scan(&id)
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("lookup user: %w", err)
		}
		return id, nil
	})
}

// Summary is the profile overview shown after analysis: the primary archetype,
// the six percentage scores, and the career forecast carried inside tor_notes.
type Summary struct {
	PrimaryArchetype     string             `json:"primary_archetype"`
	ArchetypePercentages map[string]float64 `json:"archetype_percentages"`
	CareerForecast       map[string]any     `json:"career_forecast"`
	AnalyzedAt           *time.Time         `json:"analyzed_at,omitempty"`
}

// ProfileSummary assembles the archetype summary for an email. Missing user
// is reported as pgx.ErrNoRows so the handler can 404.
func (s *ProfileService) ProfileSummary(ctx context.Context, role string, claims database.JWTClaims, email string) (*Summary, error) {
	return database.ExecuteWithRLS(ctx, s.db, role, claims, func(tx pgx.Tx) (*Summary, error) {
		var primary *string
		var analyzedAt *time.Time
		var notes []byte
		pcts := make([]*float64, 6)
		err := tx.QueryRow(ctx, `
			SELECT primary_archetype, archetype_analyzed_at,
			       archetype_realistic_percentage, archetype_investigative_percentage,
			       archetype_artistic_percentage, archetype_social_percentage,
			       archetype_enterprising_percentage, archetype_conventional_percentage,
			       tor_notes
			FROM public.users WHERE email = $1
		`, email).Scan(&primary, &analyzedAt, &pcts[0], &pcts[1], &pcts[2], &pcts[3], &pcts[4], &pcts[5], &notes)
		if err != nil {
			return nil, err
		}

		sum := &Summary{
			ArchetypePercentages: map[string]float64{},
			CareerForecast:       map[string]any{},
			AnalyzedAt:           analyzedAt,
		}
		if primary != nil {
			sum.PrimaryArchetype = *primary
		}
		for i, name := range archetypeNames {
			if pcts[i] != nil {
				sum.ArchetypePercentages[name] = *pcts[i]
			} else {
				sum.ArchetypePercentages[name] = 0
			}
		}
		sum.CareerForecast = careerForecastFromNotes(notes)
		return sum, nil
	})
}

var archetypeNames = []string{"realistic", "investigative", "artistic", "social", "enterprising", "conventional"}

// careerForecastFromNotes digs analysis_results.career_forecast out of the
// tor_notes blob; any shape mismatch yields an empty map.
func careerForecastFromNotes(notes []byte) map[string]any {
	forecast := map[string]any{}
	if len(notes) == 0 {
		return forecast
	}
	var parsed map[string]any
	if err := json.Unmarshal(notes, &parsed); err != nil {
		return forecast
	}
	results, ok := parsed["analysis_results"].(map[string]any)
	if !ok {
		return forecast
	}
	if cf, ok := results["career_forecast"].(map[string]any); ok {
		return cf
	}
	return forecast
}
