package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/remlyo/remlyo-api/internal/domain"
)

var profileNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestApplyProfileInputCompletesWithEmptyLists(t *testing.T) {
	t.Parallel()

	p, err := domain.ApplyProfileInput(domain.HealthProfile{}, domain.ProfileInput{
		DateOfBirth: "1990-05-17",
		Sex:         "Female",
		Conditions:  []string{},
		Allergies:   []string{" pollen ", ""},
		Medications: []string{},
	}, profileNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Complete() {
		t.Fatalf("expected complete profile, got %+v", p)
	}
	if p.Sex != "female" {
		t.Fatalf("sex not normalized: %q", p.Sex)
	}
	if len(p.Allergies) != 1 || p.Allergies[0] != "pollen" {
		t.Fatalf("allergies not trimmed: %v", p.Allergies)
	}
}

func TestApplyProfileInputPartialUpdateKeepsExisting(t *testing.T) {
	t.Parallel()

	base, err := domain.ApplyProfileInput(domain.HealthProfile{}, domain.ProfileInput{
		DateOfBirth: "1990-05-17", Sex: "male",
		Conditions: []string{"asthma"}, Allergies: []string{}, Medications: []string{},
	}, profileNow)
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	updated, err := domain.ApplyProfileInput(base, domain.ProfileInput{Goals: "sleep better"}, profileNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Goals != "sleep better" || len(updated.Conditions) != 1 || !updated.Complete() {
		t.Fatalf("partial update lost data: %+v", updated)
	}
}

func TestApplyProfileInputCollectsAllFieldErrors(t *testing.T) {
	t.Parallel()

	height := 10.0
	_, err := domain.ApplyProfileInput(domain.HealthProfile{}, domain.ProfileInput{
		DateOfBirth: "2020-01-01",
		Sex:         "robot",
		HeightCM:    &height,
		Conditions:  []string{"x"},
	}, profileNow)

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("ValidationError should unwrap to ErrInvalidInput")
	}
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	for _, want := range []string{"date_of_birth", "sex", "height_cm", "conditions"} {
		if !fields[want] {
			t.Fatalf("missing field error for %s in %+v", want, verr.Fields)
		}
	}
}

func TestApplyProfileInputAgeBoundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		dob   string
		now   time.Time
		valid bool
	}{
		{"thirteenth birthday after leap year", "2000-03-01", time.Date(2013, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"day before thirteenth birthday", "2000-03-01", time.Date(2013, 2, 28, 23, 0, 0, 0, time.UTC), false},
		{"leap day birth on feb 28", "2000-02-29", time.Date(2013, 2, 28, 12, 0, 0, 0, time.UTC), false},
		{"leap day birth on mar 1", "2000-02-29", time.Date(2013, 3, 1, 12, 0, 0, 0, time.UTC), true},
		{"leap day birth in leap year", "2000-02-29", time.Date(2016, 2, 29, 12, 0, 0, 0, time.UTC), true},
		{"birthday in december", "2012-12-31", time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), true},
		{"oldest allowed", "1905-06-15", time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), true},
		{"past oldest allowed", "1905-06-15", time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := domain.ApplyProfileInput(domain.HealthProfile{}, domain.ProfileInput{DateOfBirth: tc.dob}, tc.now)
			if tc.valid && err != nil {
				t.Fatalf("dob %s on %s: unexpected error %v", tc.dob, tc.now.Format("2006-01-02"), err)
			}
			if !tc.valid && !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("dob %s on %s: expected invalid input, got %v", tc.dob, tc.now.Format("2006-01-02"), err)
			}
		})
	}
}
