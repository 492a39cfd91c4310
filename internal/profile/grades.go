package profile

import (
	"encoding/json"
	"fmt"
)

// GradeRecord mirrors the objects stored in the grades JSON array. The store
// enforces no shape beyond "is an array"; this struct is the application-side
// convention.
type GradeRecord struct {
	ID         int64   `json:"id"`
	Subject    string  `json:"subject"`
	CourseCode string  `json:"courseCode,omitempty"`
	Units      float64 `json:"units"`
	Grade      float64 `json:"grade"`
	Semester   string  `json:"semester"`
}

// Validate checks the fields the upload form requires.
func (g GradeRecord) Validate() error {
	if g.ID == 0 {
		return fmt.Errorf("missing required field: id")
	}
	if g.Subject == "" {
		return fmt.Errorf("missing required field: subject")
	}
	if g.Units == 0 {
		return fmt.Errorf("missing required field: units")
	}
	if g.Grade == 0 {
		return fmt.Errorf("missing required field: grade")
	}
	if g.Semester == "" {
		return fmt.Errorf("missing required field: semester")
	}
	return nil
}

func decodeGrades(raw json.RawMessage) ([]GradeRecord, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []GradeRecord{}, nil
	}
	var grades []GradeRecord
	if err := json.Unmarshal(raw, &grades); err != nil {
		return nil, fmt.Errorf("decode grades: %w", err)
	}
	return grades, nil
}

// replaceGradeByID removes any record sharing the new record's id, then
// appends the new record. Order of the untouched records is preserved.
func replaceGradeByID(grades []GradeRecord, grade GradeRecord) []GradeRecord {
	updated := make([]GradeRecord, 0, len(grades)+1)
	for _, g := range grades {
		if g.ID != grade.ID {
			updated = append(updated, g)
		}
	}
	return append(updated, grade)
}

// removeGradeByID filters out the record with the given id, if any.
func removeGradeByID(grades []GradeRecord, id int64) []GradeRecord {
	updated := make([]GradeRecord, 0, len(grades))
	for _, g := range grades {
		if g.ID != id {
			updated = append(updated, g)
		}
	}
	return updated
}
