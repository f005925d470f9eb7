package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/ai"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// Generator is the slice of the AI client the enricher needs.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ai.Options) (string, error)
}

// ParsedEnrichment is one entry of the model's JSON answer.
type ParsedEnrichment struct {
	Email string  `json:"email"`
	Name  *string `json:"name"`
	Role  *string `json:"role"`
}

type enrichInput struct {
	Email   string `json:"email"`
	Context string `json:"context"`
}

const enrichPrompt = `You are given email addresses scraped from a website, each with the text surrounding it.
For each address, infer the person's name and job role from the context when possible.

Leads:
%s

Answer with a JSON array only, one object per lead, in the form:
[{"email": "...", "name": "..." or null, "role": "..." or null}]
Use null when the name or role cannot be determined.`

// LLMEnricher asks the model for names and roles in one batched call.
type LLMEnricher struct {
	generator Generator
	logger    *zap.Logger
}

func NewLLMEnricher(generator Generator, logger *zap.Logger) *LLMEnricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMEnricher{generator: generator, logger: logger}
}

// Enrich never fails: any error is logged and the input is returned as is.
func (e *LLMEnricher) Enrich(ctx context.Context, leads []model.ScrapedLead) []model.ScrapedLead {
	if len(leads) == 0 {
		return leads
	}

	inputs := make([]enrichInput, len(leads))
	for i, l := range leads {
		inputs[i] = enrichInput{Email: l.Email, Context: l.Context}
	}
	payload, err := json.MarshalIndent(inputs, "", "  ")
	if err != nil {
		e.logger.Error("Error encoding leads for enrichment", zap.Error(err))
		return leads
	}

	answer, err := e.generator.Generate(ctx, fmt.Sprintf(enrichPrompt, payload), ai.Options{})
	if err != nil {
		e.logger.Error("Error enriching leads", zap.Error(err))
		return leads
	}

	parsed, err := parseEnrichment(answer)
	if err != nil {
		e.logger.Error("Error parsing enrichment answer", zap.Error(err))
		return leads
	}

	byEmail := make(map[string]ParsedEnrichment, len(parsed))
	for _, p := range parsed {
		byEmail[strings.ToLower(strings.TrimSpace(p.Email))] = p
	}

	out := make([]model.ScrapedLead, len(leads))
	for i, l := range leads {
		out[i] = l
		if p, ok := byEmail[strings.ToLower(l.Email)]; ok {
			out[i].Name = nonEmpty(p.Name)
			out[i].Role = nonEmpty(p.Role)
		}
	}
	return out
}

// parseEnrichment decodes the model answer, tolerating markdown code fences.
func parseEnrichment(answer string) ([]ParsedEnrichment, error) {
	cleaned := strings.TrimSpace(answer)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed []ParsedEnrichment
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("invalid enrichment JSON: %w", err)
	}
	return parsed, nil
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
