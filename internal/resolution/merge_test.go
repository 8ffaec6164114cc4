package resolution

import (
	"reflect"
	"testing"

	"horse.fit/intake/internal/candidate"
	"horse.fit/intake/internal/db"
)

func TestBuildMergePlanFillsOnlyEmptyScalars(t *testing.T) {
	t.Parallel()

	primary := &db.CandidateRecord{
		FirstName: "Sarah",
		LastName:  "Connor",
		PhoneRaw:  "",
		Email:     "sarah@example.com",
		JobTitle:  "Warehouse Operative",
	}
	draft := candidate.Draft{
		FirstName: "Sara",
		LastName:  "Conner",
		Phone:     "07700 900123",
		Email:     "sara.c@other.com",
		JobTitle:  "Picker",
	}

	plan := buildMergePlan(primary, draft)

	if plan.FirstName != "Sarah" {
		t.Fatalf("first name overwritten: %q", plan.FirstName)
	}
	if plan.Email != "sarah@example.com" {
		t.Fatalf("email overwritten: %q", plan.Email)
	}
	if plan.PhoneRaw != "07700 900123" {
		t.Fatalf("empty phone not filled: %q", plan.PhoneRaw)
	}
	if !reflect.DeepEqual(plan.ChangedFields, []string{"phone"}) {
		t.Fatalf("changed fields = %v, want [phone]", plan.ChangedFields)
	}
}

func TestBuildMergePlanUnionsArrays(t *testing.T) {
	t.Parallel()

	primary := &db.CandidateRecord{
		FirstName: "Sam",
		LastName:  "Reed",
		Skills:    []string{"Forklift", "Picking"},
	}
	draft := candidate.Draft{
		FirstName:      "Sam",
		LastName:       "Reed",
		Skills:         []string{"forklift", "Packing"},
		Qualifications: []string{"FLT Licence"},
	}

	plan := buildMergePlan(primary, draft)

	if !reflect.DeepEqual(plan.Skills, []string{"Forklift", "Picking", "Packing"}) {
		t.Fatalf("skills union = %v", plan.Skills)
	}
	if !reflect.DeepEqual(plan.Qualifications, []string{"FLT Licence"}) {
		t.Fatalf("qualifications union = %v", plan.Qualifications)
	}

	wantChanged := []string{"skills", "qualifications"}
	if !reflect.DeepEqual(plan.ChangedFields, wantChanged) {
		t.Fatalf("changed fields = %v, want %v", plan.ChangedFields, wantChanged)
	}
}

func TestBuildMergePlanAdoptsCVOnlyWhenMissing(t *testing.T) {
	t.Parallel()

	existingKey := "ab/cdef.pdf"
	primary := &db.CandidateRecord{
		FirstName:   "Sam",
		LastName:    "Reed",
		CVObjectKey: &existingKey,
	}
	draft := candidate.Draft{
		FirstName:   "Sam",
		LastName:    "Reed",
		CVObjectKey: "cd/9988.pdf",
		CVFileName:  "sam_reed.pdf",
	}

	plan := buildMergePlan(primary, draft)
	if plan.CVObjectKey == nil || *plan.CVObjectKey != existingKey {
		t.Fatalf("primary cv replaced: %v", plan.CVObjectKey)
	}

	primary.CVObjectKey = nil
	plan = buildMergePlan(primary, draft)
	if plan.CVObjectKey == nil || *plan.CVObjectKey != "cd/9988.pdf" {
		t.Fatalf("missing cv not adopted: %v", plan.CVObjectKey)
	}
	if plan.CVFileName == nil || *plan.CVFileName != "sam_reed.pdf" {
		t.Fatalf("cv file name not adopted: %v", plan.CVFileName)
	}
}

func TestBuildMergePlanNoChanges(t *testing.T) {
	t.Parallel()

	primary := &db.CandidateRecord{
		FirstName: "Ada",
		LastName:  "Byron",
		PhoneRaw:  "07700900001",
		Email:     "ada@example.com",
		JobTitle:  "Analyst",
		Skills:    []string{"Maths"},
	}
	draft := candidate.Draft{
		FirstName: "Ada",
		LastName:  "Byron",
		Phone:     "07700 900 001",
		Skills:    []string{"maths"},
	}

	plan := buildMergePlan(primary, draft)
	if len(plan.ChangedFields) != 0 {
		t.Fatalf("expected no changes, got %v", plan.ChangedFields)
	}
	if plan.PhoneRaw != "07700900001" {
		t.Fatalf("populated phone overwritten: %q", plan.PhoneRaw)
	}
}
