// internal/service/template_service.go
package service

import (
	"strings"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// RenderTemplate replaces {key} placeholders in one pass, so values that
// themselves contain braces are never expanded again.
func RenderTemplate(template string, data map[string]string) string {
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

const personalizationTemplate = `{persona}

You are writing a cold outreach email on behalf of the persona above.
Write a short, friendly and personalized email to this lead:

Name: {name}
Role: {role}
Email: {email}

Return only the body of the email, without a subject line.`

const (
	fallbackName = "there"
	fallbackRole = "Professional"
)

// PersonalizationPrompt builds the generation prompt for one lead.
func PersonalizationPrompt(persona string, lead *model.Lead) string {
	return RenderTemplate(personalizationTemplate, map[string]string{
		"persona": strings.TrimSpace(persona),
		"name":    valueOr(lead.FirstName, fallbackName),
		"role":    valueOr(lead.Role, fallbackRole),
		"email":   lead.Email,
	})
}

// EmailSubject is the subject line of every campaign email.
func EmailSubject(campaignName string) string {
	return "Message from " + campaignName
}

func valueOr(s *string, fallback string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return fallback
	}
	return strings.TrimSpace(*s)
}
