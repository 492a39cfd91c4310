package profile

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// GradeRecord.Validate
// ---------------------------------------------------------------------------

func TestGradeRecord_Validate(t *testing.T) {
	valid := GradeRecord{ID: 1, Subject: "Math", CourseCode: "MATH101", Units: 3, Grade: 1.0, Semester: "1"}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid record, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*GradeRecord)
	}{
		{"missing id", func(g *GradeRecord) { g.ID = 0 }},
		{"missing subject", func(g *GradeRecord) { g.Subject = "" }},
		{"missing units", func(g *GradeRecord) { g.Units = 0 }},
		{"missing grade", func(g *GradeRecord) { g.Grade = 0 }},
		{"missing semester", func(g *GradeRecord) { g.Semester = "" }},
	}
	for _, tt := range tests {
		g := valid
		tt.mutate(&g)
		if err := g.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestGradeRecord_JSONFieldNames(t *testing.T) {
	g := GradeRecord{ID: 1, Subject: "Math", CourseCode: "MATH101", Units: 3, Grade: 1.0, Semester: "1"}
	data, err := json.Marshal(g)
	if err != nil {
		t.Fatal(err)
	}

	var m map[string]interface{}
	json.Unmarshal(data, &m)
	for _, key := range []string{"id", "subject", "courseCode", "units", "grade", "semester"} {
		if _, ok := m[key]; !ok {
			t.Errorf("expected JSON key %q", key)
		}
	}
}

// ---------------------------------------------------------------------------
// decodeGrades
// ---------------------------------------------------------------------------

func TestDecodeGrades_NilAndNull(t *testing.T) {
	for _, raw := range []json.RawMessage{nil, json.RawMessage("null")} {
		grades, err := decodeGrades(raw)
		if err != nil {
			t.Fatalf("decodeGrades(%q) failed: %v", raw, err)
		}
		if len(grades) != 0 {
			t.Errorf("expected empty slice for %q, got %d records", raw, len(grades))
		}
	}
}

func TestDecodeGrades_Array(t *testing.T) {
	raw := json.RawMessage(`[{"id":1,"subject":"Math","courseCode":"MATH101","units":3,"grade":1.0,"semester":"1"}]`)
	grades, err := decodeGrades(raw)
	if err != nil {
		t.Fatalf("decodeGrades failed: %v", err)
	}
	if len(grades) != 1 {
		t.Fatalf("expected 1 record, got %d", len(grades))
	}
	if grades[0].Subject != "Math" || grades[0].CourseCode != "MATH101" {
		t.Errorf("unexpected record: %+v", grades[0])
	}
}

func TestDecodeGrades_RejectsNonArray(t *testing.T) {
	if _, err := decodeGrades(json.RawMessage(`{"id":1}`)); err == nil {
		t.Fatal("expected error for non-array grades value")
	}
}

// ---------------------------------------------------------------------------
// replaceGradeByID / removeGradeByID
// ---------------------------------------------------------------------------

func TestReplaceGradeByID_Appends(t *testing.T) {
	grades := []GradeRecord{{ID: 1, Subject: "Math"}}
	updated := replaceGradeByID(grades, GradeRecord{ID: 2, Subject: "Physics"})

	if len(updated) != 2 {
		t.Fatalf("expected 2 records, got %d", len(updated))
	}
	if updated[0].ID != 1 || updated[1].ID != 2 {
		t.Errorf("unexpected order: %+v", updated)
	}
}

func TestReplaceGradeByID_ReplacesWithoutDuplicating(t *testing.T) {
	grades := []GradeRecord{
		{ID: 1, Subject: "Math", Grade: 2.0},
		{ID: 2, Subject: "Physics"},
	}
	updated := replaceGradeByID(grades, GradeRecord{ID: 1, Subject: "Math", Grade: 1.25})

	if len(updated) != 2 {
		t.Fatalf("expected 2 records after replace, got %d", len(updated))
	}
	// Untouched record keeps its position, the replaced one moves to the end
	if updated[0].ID != 2 {
		t.Errorf("expected remaining record first, got %+v", updated[0])
	}
	if updated[1].ID != 1 || updated[1].Grade != 1.25 {
		t.Errorf("expected replaced record last with new grade, got %+v", updated[1])
	}
}

func TestRemoveGradeByID(t *testing.T) {
	grades := []GradeRecord{{ID: 1}, {ID: 2}, {ID: 3}}

	updated := removeGradeByID(grades, 2)
	if len(updated) != 2 {
		t.Fatalf("expected 2 records, got %d", len(updated))
	}
	if updated[0].ID != 1 || updated[1].ID != 3 {
		t.Errorf("unexpected records: %+v", updated)
	}

	// Removing a missing id is a no-op
	same := removeGradeByID(grades, 99)
	if len(same) != 3 {
		t.Errorf("expected no-op for missing id, got %d records", len(same))
	}
}
