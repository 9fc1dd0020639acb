package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/remlyo/remlyo-api/internal/ports"
	"google.golang.org/genai"
)

const systemInstruction = `You suggest gentle, evidence-informed home remedies.
Respond with a single JSON object only. Never recommend stopping prescribed medication.
Always list precautions, and respect every allergy and medication you are given.`

// contentModel is the subset of *genai.Models the generator calls.
type contentModel interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator drafts remedies with a Gemini model constrained to a JSON schema.
type GeminiGenerator struct {
	models contentModel
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiGenerator{models: client.Models, model: model}, nil
}

var remedySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"name":         {Type: genai.TypeString},
		"description":  {Type: genai.TypeString},
		"ingredients":  {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"instructions": {Type: genai.TypeString},
		"precautions":  {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"name", "description", "ingredients", "instructions", "precautions"},
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt ports.RemedyPrompt) (ports.GeneratedRemedy, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(buildPrompt(prompt)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    remedySchema,
		Temperature:       genai.Ptr[float32](0.4),
	})
	if err != nil {
		return ports.GeneratedRemedy{}, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil {
		return ports.GeneratedRemedy{}, errors.New("empty model response")
	}
	return decodeRemedy(resp.Text())
}

func decodeRemedy(raw string) (ports.GeneratedRemedy, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	var out ports.GeneratedRemedy
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		return ports.GeneratedRemedy{}, fmt.Errorf("decode model output: %w", err)
	}
	if strings.TrimSpace(out.Name) == "" || strings.TrimSpace(out.Instructions) == "" {
		return ports.GeneratedRemedy{}, errors.New("model output is missing name or instructions")
	}
	return out, nil
}

func buildPrompt(p ports.RemedyPrompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest one home remedy for: %s.\n", p.AilmentName)
	if p.AilmentDescription != "" {
		fmt.Fprintf(&b, "About the ailment: %s\n", p.AilmentDescription)
	}
	writeList(&b, "Symptoms", p.Symptoms)
	writeList(&b, "Existing conditions", p.Conditions)
	writeList(&b, "Allergies (must avoid)", p.Allergies)
	writeList(&b, "Current medications (check interactions)", p.Medications)
	writeList(&b, "Dietary preferences", p.DietaryPreferences)
	if p.Notes != "" {
		fmt.Fprintf(&b, "Extra notes from the user: %s\n", p.Notes)
	}
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(items, ", "))
}
