package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type AilmentCategory string

const (
	AilmentDigestive       AilmentCategory = "digestive"
	AilmentRespiratory     AilmentCategory = "respiratory"
	AilmentSkin            AilmentCategory = "skin"
	AilmentMentalHealth    AilmentCategory = "mental_health"
	AilmentMusculoskeletal AilmentCategory = "musculoskeletal"
	AilmentCardiovascular  AilmentCategory = "cardiovascular"
	AilmentImmune          AilmentCategory = "immune"
	AilmentSleep           AilmentCategory = "sleep"
	AilmentWomensHealth    AilmentCategory = "womens_health"
	AilmentMensHealth      AilmentCategory = "mens_health"
	AilmentPediatric       AilmentCategory = "pediatric"
	AilmentOther           AilmentCategory = "other"
)

var ailmentCategories = map[AilmentCategory]struct{}{
	AilmentDigestive: {}, AilmentRespiratory: {}, AilmentSkin: {}, AilmentMentalHealth: {},
	AilmentMusculoskeletal: {}, AilmentCardiovascular: {}, AilmentImmune: {}, AilmentSleep: {},
	AilmentWomensHealth: {}, AilmentMensHealth: {}, AilmentPediatric: {}, AilmentOther: {},
}

func (c AilmentCategory) Valid() bool {
	_, ok := ailmentCategories[c]
	return ok
}

// Ailment is a condition users browse remedies for.
type Ailment struct {
	AilmentID       uuid.UUID       `json:"ailment_id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Category        AilmentCategory `json:"category"`
	Symptoms        []string        `json:"symptoms"`
	RelatedRemedies []uuid.UUID     `json:"related_remedies"`
	RelatedAilments []uuid.UUID     `json:"related_ailments"`
	CreatedBy       uuid.UUID       `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// AilmentInput is the writable part of an ailment.
type AilmentInput struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Category        string   `json:"category"`
	Symptoms        []string `json:"symptoms"`
	RelatedRemedies []string `json:"related_remedies"`
	RelatedAilments []string `json:"related_ailments"`
}

// NormalizedAilment is a validated AilmentInput.
type NormalizedAilment struct {
	Name            string
	Description     string
	Category        AilmentCategory
	Symptoms        []string
	RelatedRemedies []uuid.UUID
	RelatedAilments []uuid.UUID
}

const (
	maxSymptoms = 50
)

// ValidateAilment trims and checks an ailment payload, reporting every violation at once.
func ValidateAilment(in AilmentInput) (NormalizedAilment, error) {
	verr := &ValidationError{}
	out := NormalizedAilment{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Category:    AilmentCategory(strings.ToLower(strings.TrimSpace(in.Category))),
	}

	checkLength(verr, "name", out.Name, 2, 100)
	checkLength(verr, "description", out.Description, 10, 2000)
	if out.Category == "" {
		verr.add("category", "is required")
	} else if !out.Category.Valid() {
		verr.add("category", "must be one of the supported categories")
	}

	switch {
	case len(in.Symptoms) == 0:
		verr.add("symptoms", "must contain at least 1 item")
	case len(in.Symptoms) > maxSymptoms:
		verr.add("symptoms", "must contain at most 50 items")
	default:
		seen := make(map[string]struct{}, len(in.Symptoms))
		for _, raw := range in.Symptoms {
			s := strings.TrimSpace(raw)
			n := utf8.RuneCountInString(s)
			if n < 2 || n > 100 {
				verr.add("symptoms", "each symptom must be 2-100 characters")
				break
			}
			key := strings.ToLower(s)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out.Symptoms = append(out.Symptoms, s)
		}
	}

	out.RelatedRemedies = parseIDList(verr, "related_remedies", in.RelatedRemedies)
	out.RelatedAilments = parseIDList(verr, "related_ailments", in.RelatedAilments)

	if err := verr.orNil(); err != nil {
		return NormalizedAilment{}, err
	}
	return out, nil
}

func checkLength(verr *ValidationError, field, value string, min, max int) {
	n := utf8.RuneCountInString(value)
	switch {
	case n == 0:
		verr.add(field, "is required")
	case n < min:
		verr.add(field, "is too short")
	case n > max:
		verr.add(field, "is too long")
	}
}

func parseIDList(verr *ValidationError, field string, raw []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(strings.TrimSpace(r))
		if err != nil {
			verr.add(field, "must contain valid ids")
			return nil
		}
		out = append(out, id)
	}
	return out
}
