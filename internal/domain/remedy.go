package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type RemedyType string

const (
	RemedyCommunity      RemedyType = "community"
	RemedyAlternative    RemedyType = "alternative"
	RemedyPharmaceutical RemedyType = "pharmaceutical"
	RemedyAI             RemedyType = "ai"
)

func (t RemedyType) Valid() bool {
	switch t {
	case RemedyCommunity, RemedyAlternative, RemedyPharmaceutical, RemedyAI:
		return true
	}
	return false
}

type RemedyStatus string

const (
	RemedyPending  RemedyStatus = "pending"
	RemedyApproved RemedyStatus = "approved"
	RemedyRejected RemedyStatus = "rejected"
)

// AIDisclaimer is attached to every generated remedy.
const AIDisclaimer = "This remedy was generated by an AI model and is not medical advice. Consult a qualified healthcare professional before trying it."

type Remedy struct {
	RemedyID        uuid.UUID    `json:"remedy_id"`
	AilmentID       uuid.UUID    `json:"ailment_id"`
	AuthorID        uuid.UUID    `json:"author_id"`
	Type            RemedyType   `json:"type"`
	Status          RemedyStatus `json:"status"`
	Private         bool         `json:"private"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	Ingredients     []string     `json:"ingredients"`
	Instructions    string       `json:"instructions"`
	Precautions     []string     `json:"precautions"`
	Disclaimer      string       `json:"disclaimer,omitempty"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
	RatingAverage   float64      `json:"rating_average"`
	RatingCount     int          `json:"rating_count"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// VisibleTo reports whether the viewer may read the remedy.
func (r Remedy) VisibleTo(viewer uuid.UUID, role Role) bool {
	if r.AuthorID == viewer && viewer != uuid.Nil {
		return true
	}
	if r.Private {
		return false
	}
	if r.Status == RemedyApproved {
		return true
	}
	return role.In(ModeratorRoles...)
}

type RemedyInput struct {
	AilmentID    string   `json:"ailment_id"`
	Type         string   `json:"type"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Ingredients  []string `json:"ingredients"`
	Instructions string   `json:"instructions"`
	Precautions  []string `json:"precautions"`
}

type NormalizedRemedy struct {
	AilmentID    uuid.UUID
	Type         RemedyType
	Name         string
	Description  string
	Ingredients  []string
	Instructions string
	Precautions  []string
}

// ValidateRemedy checks a manually authored remedy. AI remedies cannot be authored by hand.
func ValidateRemedy(in RemedyInput) (NormalizedRemedy, error) {
	verr := &ValidationError{}
	out := NormalizedRemedy{
		Type:         RemedyType(strings.ToLower(strings.TrimSpace(in.Type))),
		Name:         strings.TrimSpace(in.Name),
		Description:  strings.TrimSpace(in.Description),
		Instructions: strings.TrimSpace(in.Instructions),
		Ingredients:  trimList(in.Ingredients),
		Precautions:  trimList(in.Precautions),
	}

	id, err := uuid.Parse(strings.TrimSpace(in.AilmentID))
	if err != nil {
		verr.add("ailment_id", "must be a valid id")
	}
	out.AilmentID = id

	switch {
	case out.Type == "":
		verr.add("type", "is required")
	case out.Type == RemedyAI:
		verr.add("type", "ai remedies are generated, not authored")
	case !out.Type.Valid():
		verr.add("type", "must be community, alternative, or pharmaceutical")
	}
	checkLength(verr, "name", out.Name, 2, 150)
	checkLength(verr, "description", out.Description, 10, 5000)
	checkLength(verr, "instructions", out.Instructions, 10, 5000)
	if len(out.Ingredients) > 100 {
		verr.add("ingredients", "must contain at most 100 items")
	}
	if len(out.Precautions) > 50 {
		verr.add("precautions", "must contain at most 50 items")
	}

	if err := verr.orNil(); err != nil {
		return NormalizedRemedy{}, err
	}
	return out, nil
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

type ReviewStatus string

const (
	ReviewVisible ReviewStatus = "visible"
	ReviewFlagged ReviewStatus = "flagged"
	ReviewHidden  ReviewStatus = "hidden"
)

type Review struct {
	ReviewID  uuid.UUID    `json:"review_id"`
	RemedyID  uuid.UUID    `json:"remedy_id"`
	UserID    uuid.UUID    `json:"user_id"`
	Rating    int          `json:"rating"`
	Comment   string       `json:"comment"`
	Status    ReviewStatus `json:"status"`
	FlagCount int          `json:"flag_count"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func ValidateReview(rating int, comment string) (string, error) {
	verr := &ValidationError{}
	if rating < 1 || rating > 5 {
		verr.add("rating", "must be between 1 and 5")
	}
	comment = strings.TrimSpace(comment)
	if len([]rune(comment)) > 2000 {
		verr.add("comment", "is too long")
	}
	return comment, verr.orNil()
}

// ModerationDecision is an entry of the moderation log.
type ModerationDecision struct {
	DecisionID  uuid.UUID `json:"decision_id"`
	ModeratorID uuid.UUID `json:"moderator_id"`
	TargetKind  string    `json:"target_kind"`
	TargetID    uuid.UUID `json:"target_id"`
	Action      string    `json:"action"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
