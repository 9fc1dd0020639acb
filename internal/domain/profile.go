package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// HealthProfile holds the answers a user gives during onboarding.
// AnsweredAt is set once the list questions have been explicitly answered, even with empty lists.
type HealthProfile struct {
	UserID             uuid.UUID  `json:"user_id"`
	DateOfBirth        *time.Time `json:"date_of_birth,omitempty"`
	Sex                string     `json:"sex,omitempty"`
	HeightCM           *float64   `json:"height_cm,omitempty"`
	WeightKG           *float64   `json:"weight_kg,omitempty"`
	Conditions         []string   `json:"conditions"`
	Allergies          []string   `json:"allergies"`
	Medications        []string   `json:"medications"`
	DietaryPreferences []string   `json:"dietary_preferences"`
	Goals              string     `json:"goals,omitempty"`
	AnsweredAt         *time.Time `json:"answered_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Complete reports whether onboarding can move past the profile stage.
func (p HealthProfile) Complete() bool {
	return p.DateOfBirth != nil && p.Sex != "" && p.AnsweredAt != nil
}

type ProfileInput struct {
	DateOfBirth        string   `json:"date_of_birth"`
	Sex                string   `json:"sex"`
	HeightCM           *float64 `json:"height_cm"`
	WeightKG           *float64 `json:"weight_kg"`
	Conditions         []string `json:"conditions"`
	Allergies          []string `json:"allergies"`
	Medications        []string `json:"medications"`
	DietaryPreferences []string `json:"dietary_preferences"`
	Goals              string   `json:"goals"`
}

var sexes = map[string]struct{}{"female": {}, "male": {}, "intersex": {}, "prefer_not_to_say": {}}

// ApplyProfileInput validates input and merges it into the existing profile.
func ApplyProfileInput(p HealthProfile, in ProfileInput, now time.Time) (HealthProfile, error) {
	verr := &ValidationError{}

	if raw := strings.TrimSpace(in.DateOfBirth); raw != "" {
		dob, err := time.Parse("2006-01-02", raw)
		if err != nil {
			verr.add("date_of_birth", "must be formatted YYYY-MM-DD")
		} else {
			age := ageAt(dob, now)
			if age < 13 || age > 120 {
				verr.add("date_of_birth", "age must be between 13 and 120")
			} else {
				p.DateOfBirth = &dob
			}
		}
	}
	if raw := strings.ToLower(strings.TrimSpace(in.Sex)); raw != "" {
		if _, ok := sexes[raw]; !ok {
			verr.add("sex", "must be female, male, intersex, or prefer_not_to_say")
		} else {
			p.Sex = raw
		}
	}
	if in.HeightCM != nil {
		if *in.HeightCM < 50 || *in.HeightCM > 272 {
			verr.add("height_cm", "must be between 50 and 272")
		} else {
			p.HeightCM = in.HeightCM
		}
	}
	if in.WeightKG != nil {
		if *in.WeightKG < 2 || *in.WeightKG > 635 {
			verr.add("weight_kg", "must be between 2 and 635")
		} else {
			p.WeightKG = in.WeightKG
		}
	}
	goals := strings.TrimSpace(in.Goals)
	if len([]rune(goals)) > 1000 {
		verr.add("goals", "is too long")
	} else if goals != "" {
		p.Goals = goals
	}

	if in.Conditions != nil && in.Allergies != nil && in.Medications != nil {
		p.Conditions = trimList(in.Conditions)
		p.Allergies = trimList(in.Allergies)
		p.Medications = trimList(in.Medications)
		answered := now
		p.AnsweredAt = &answered
	} else if in.Conditions != nil || in.Allergies != nil || in.Medications != nil {
		verr.add("conditions", "conditions, allergies, and medications must be answered together")
	}
	if in.DietaryPreferences != nil {
		p.DietaryPreferences = trimList(in.DietaryPreferences)
	}

	if err := verr.orNil(); err != nil {
		return HealthProfile{}, err
	}
	p.UpdatedAt = now
	return p, nil
}

// ageAt counts completed years; a Feb 29 birthday falls on Mar 1 in common years.
func ageAt(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}
