package ports

import "context"

// RemedyPrompt is the context handed to the remedy generator.
type RemedyPrompt struct {
	AilmentName        string
	AilmentDescription string
	Symptoms           []string
	Conditions         []string
	Allergies          []string
	Medications        []string
	DietaryPreferences []string
	Notes              string
}

type GeneratedRemedy struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Ingredients  []string `json:"ingredients"`
	Instructions string   `json:"instructions"`
	Precautions  []string `json:"precautions"`
}

type RemedyGenerator interface {
	Generate(ctx context.Context, prompt RemedyPrompt) (GeneratedRemedy, error)
}

// Metrics records domain counters. Implementations must be safe for concurrent use.
type Metrics interface {
	Registration(outcome string)
	Checkout(outcome string)
	Generation(outcome string)
	ModerationDecision(kind, action string)
}
