package service

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/DiegoCico/Neuro/internal/apperror"
	"github.com/DiegoCico/Neuro/internal/model"
)

// fakeExperienceRepo keeps entries in insertion order.
type fakeExperienceRepo struct {
	mu      sync.Mutex
	entries []model.Experience
	err     error
}

func (f *fakeExperienceRepo) ListExperiences(ctx context.Context, userID string) ([]model.Experience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []model.Experience{}
	for _, e := range f.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeExperienceRepo) SaveExperience(ctx context.Context, e *model.Experience) (*model.Experience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for i, stored := range f.entries {
		if stored.ID != e.ID {
			continue
		}
		if stored.UserID != e.UserID {
			return nil, apperror.Forbidden("experience belongs to another user")
		}
		f.entries[i] = *e
		return e, nil
	}
	f.entries = append(f.entries, *e)
	return e, nil
}

func (f *fakeExperienceRepo) DeleteExperience(ctx context.Context, userID, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for i, e := range f.entries {
		if e.ID == id && e.UserID == userID {
			f.entries = slices.Delete(f.entries, i, i+1)
			return true, nil
		}
	}
	return false, nil
}

func newTestExperienceService(users *fakeUserRepo, experiences *fakeExperienceRepo) *ExperienceService {
	return NewExperienceService(experiences, newTestResolver(users, 0), discardLogger())
}

// =========================================================================
// VALIDATION
// =========================================================================

func TestCanonicalExperience(t *testing.T) {
	tests := []struct {
		name      string
		in        model.ExperienceInput
		wantField string // non-empty means a validation error on this field
		check     func(t *testing.T, e *model.Experience)
	}{
		{
			name: "trims text",
			in:   model.ExperienceInput{Title: "  Engineer ", Company: " Acme ", StartDate: " 2020-01 "},
			check: func(t *testing.T, e *model.Experience) {
				if e.Title != "Engineer" || e.Company != "Acme" || e.StartDate != "2020-01" {
					t.Errorf("got %+v, want trimmed fields", e)
				}
			},
		},
		{name: "title required", in: model.ExperienceInput{Title: "   "}, wantField: "title"},
		{name: "long company", in: model.ExperienceInput{Title: "x", Company: strings.Repeat("a", 201)}, wantField: "company"},
		{name: "long description", in: model.ExperienceInput{Title: "x", Description: strings.Repeat("a", 5001)}, wantField: "description"},
		{name: "bad start date", in: model.ExperienceInput{Title: "x", StartDate: "2020/01"}, wantField: "startDate"},
		{name: "bad month", in: model.ExperienceInput{Title: "x", EndDate: "2020-13"}, wantField: "endDate"},
		{name: "end before start", in: model.ExperienceInput{Title: "x", StartDate: "2021-05", EndDate: "2020-01"}, wantField: "endDate"},
		{
			name: "current drops end date",
			in:   model.ExperienceInput{Title: "x", StartDate: "2021-05", EndDate: "2020-01", Current: true},
			check: func(t *testing.T, e *model.Experience) {
				if e.EndDate != "" {
					t.Errorf("EndDate = %q, want it cleared for a current position", e.EndDate)
				}
			},
		},
		{
			name: "skills cleaned",
			in:   model.ExperienceInput{Title: "x", Skills: model.SkillList{" Go ", "", "go", "SQL"}},
			check: func(t *testing.T, e *model.Experience) {
				if !slices.Equal(e.Skills, []string{"Go", "SQL"}) {
					t.Errorf("Skills = %v, want [Go SQL]", e.Skills)
				}
			},
		},
		{
			name: "technologies stand in for skills",
			in:   model.ExperienceInput{Title: "x", Technologies: model.SkillList{"rust", "wasm"}},
			check: func(t *testing.T, e *model.Experience) {
				if !slices.Equal(e.Skills, []string{"rust", "wasm"}) {
					t.Errorf("Skills = %v, want [rust wasm]", e.Skills)
				}
			},
		},
		{
			name: "skills win over technologies",
			in:   model.ExperienceInput{Title: "x", Skills: model.SkillList{"go"}, Technologies: model.SkillList{"rust"}},
			check: func(t *testing.T, e *model.Experience) {
				if !slices.Equal(e.Skills, []string{"go"}) {
					t.Errorf("Skills = %v, want [go]", e.Skills)
				}
			},
		},
		{
			name: "no skills is empty not nil",
			in:   model.ExperienceInput{Title: "x"},
			check: func(t *testing.T, e *model.Experience) {
				if e.Skills == nil || len(e.Skills) != 0 {
					t.Errorf("Skills = %#v, want empty slice", e.Skills)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, err := canonicalExperience(tc.in)
			if tc.wantField != "" {
				assertAppError(t, err, apperror.ErrValidation)
				if got := err.(*apperror.AppError).Field; got != tc.wantField {
					t.Errorf("Field = %q, want %q", got, tc.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("canonicalExperience() error = %v", err)
			}
			tc.check(t, e)
		})
	}
}

func TestCleanSkills_Cap(t *testing.T) {
	in := make([]string, 0, 40)
	for i := range 40 {
		in = append(in, strings.Repeat("s", i+1))
	}
	if got := cleanSkills(in); len(got) != MaxExperienceSkills {
		t.Errorf("len(cleanSkills) = %d, want %d", len(got), MaxExperienceSkills)
	}
}

// =========================================================================
// CRUD
// =========================================================================

func TestExperience_AddUpdateDelete(t *testing.T) {
	users := newFakeUserRepo()
	experiences := &fakeExperienceRepo{}
	svc := newTestExperienceService(users, experiences)
	ctx := context.Background()

	added, err := svc.Add(ctx, "u1", model.ExperienceInput{Title: "Engineer"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if added.ID == "" || added.UserID != "u1" {
		t.Fatalf("Add() = %+v, want a fresh id owned by u1", added)
	}

	updated, err := svc.Update(ctx, "u1", added.ID, model.ExperienceInput{Title: "Lead"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.ID != added.ID || updated.Title != "Lead" {
		t.Errorf("Update() = %+v, want id %s title Lead", updated, added.ID)
	}
	if len(experiences.entries) != 1 {
		t.Errorf("stored %d entries, want 1", len(experiences.entries))
	}

	if err := svc.Delete(ctx, "u1", added.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := svc.Delete(ctx, "u1", added.ID); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
	if len(experiences.entries) != 0 {
		t.Errorf("stored %d entries after delete, want 0", len(experiences.entries))
	}
}

func TestExperience_UpdateCreatesUnderGivenID(t *testing.T) {
	experiences := &fakeExperienceRepo{}
	svc := newTestExperienceService(newFakeUserRepo(), experiences)

	e, err := svc.Update(context.Background(), "u1", "job-1", model.ExperienceInput{Title: "Engineer"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if e.ID != "job-1" {
		t.Errorf("ID = %q, want job-1", e.ID)
	}
}

func TestExperience_Errors(t *testing.T) {
	experiences := &fakeExperienceRepo{entries: []model.Experience{{ID: "e1", UserID: "owner", Title: "x"}}}
	svc := newTestExperienceService(newFakeUserRepo(), experiences)
	ctx := context.Background()
	in := model.ExperienceInput{Title: "x"}

	_, err := svc.Add(ctx, "", in)
	assertAppError(t, err, apperror.ErrUnauthorized)

	_, err = svc.Update(ctx, " ", "e1", in)
	assertAppError(t, err, apperror.ErrUnauthorized)

	err = svc.Delete(ctx, "", "e1")
	assertAppError(t, err, apperror.ErrUnauthorized)

	_, err = svc.Update(ctx, "u1", "../e1", in)
	assertAppError(t, err, apperror.ErrValidation)

	_, err = svc.Update(ctx, "u1", strings.Repeat("a", 65), in)
	assertAppError(t, err, apperror.ErrValidation)

	_, err = svc.Add(ctx, "u1", model.ExperienceInput{})
	assertAppError(t, err, apperror.ErrValidation)

	_, err = svc.Update(ctx, "intruder", "e1", in)
	assertAppError(t, err, apperror.ErrForbidden)

	experiences.err = errFakeStore
	_, err = svc.Add(ctx, "u1", in)
	assertAppError(t, err, errFakeStore)
}

func TestExperience_ListBySlug(t *testing.T) {
	users := newFakeUserRepo()
	users.put(model.User{ID: "u1", Slug: "ada"})
	users.put(model.User{ID: "u2", FirstName: "Grace", LastName: "Hopper"})
	experiences := &fakeExperienceRepo{entries: []model.Experience{
		{ID: "e1", UserID: "u1", Title: "Analyst"},
		{ID: "e2", UserID: "u2", Title: "Admiral"},
	}}
	svc := newTestExperienceService(users, experiences)
	ctx := context.Background()

	tests := []struct {
		slug string
		want []string
	}{
		{"ada", []string{"e1"}},
		{"GRACE-HOPPER", []string{"e2"}},
		{"nobody", []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.slug, func(t *testing.T) {
			list, err := svc.ListBySlug(ctx, tc.slug)
			if err != nil {
				t.Fatalf("ListBySlug() error = %v", err)
			}
			ids := []string{}
			for _, e := range list {
				ids = append(ids, e.ID)
			}
			if !slices.Equal(ids, tc.want) {
				t.Errorf("ListBySlug(%q) = %v, want %v", tc.slug, ids, tc.want)
			}
			if list == nil {
				t.Error("ListBySlug() returned nil, want an empty list")
			}
		})
	}
}

func TestExperience_ListBySlugStoreError(t *testing.T) {
	users := newFakeUserRepo()
	users.put(model.User{ID: "u1", Slug: "ada"})
	svc := newTestExperienceService(users, &fakeExperienceRepo{err: errFakeStore})

	_, err := svc.ListBySlug(context.Background(), "ada")
	assertAppError(t, err, errFakeStore)
}
