// Package chat holds the assistant registry and forwards chat turns to the ask upstream.
package chat

import (
	"fmt"
	"sort"
	"strings"
)

// Assistant describes one tenant page: which upstream context it talks to and the
// messages it shows when something goes wrong.
type Assistant struct {
	Name             string   `json:"name"`
	Title            string   `json:"title"`
	Context          string   `json:"context"`
	Language         string   `json:"language"`
	Models           []string `json:"models,omitempty"`
	DefaultModel     string   `json:"defaultModel,omitempty"`
	Greeting         string   `json:"greeting"`
	RateLimitMessage string   `json:"-"`
	ErrorMessage     string   `json:"-"`
	DetectsQuotes    bool     `json:"detectsQuotes"`
}

var registry = map[string]Assistant{
	"menuiserie": {
		Name:             "menuiserie",
		Title:            "Batappli IA",
		Context:          "batman",
		Language:         "french",
		Models:           []string{"anthropic", "mistral"},
		DefaultModel:     "mistral",
		Greeting:         "Bonjour ! Je suis Marc, votre assistant spécialisé en menuiserie. Je suis là pour vous aider à éditer un devis.\n\nComment puis-je vous aider aujourd'hui ?",
		RateLimitMessage: "Désolée, vous avez atteint la limite de requêtes. Veuillez réessayer dans une heure.",
		ErrorMessage:     "Désolée, je rencontre un problème technique. Pouvez-vous réessayer ?",
		DetectsQuotes:    true,
	},
	"aeve": {
		Name:             "aeve",
		Title:            "Cover Letter Generator",
		Context:          "aeve",
		Language:         "english",
		Greeting:         "Paste a job description and upload your resume to generate a cover letter.",
		RateLimitMessage: "You have reached the request limit. Please try again in an hour.",
		ErrorMessage:     "Failed to generate cover letter",
	},
	"general": {
		Name:             "general",
		Title:            "Assistant",
		Context:          "general",
		Language:         "english",
		Greeting:         "Hello! How can I help you today?",
		RateLimitMessage: "You have reached the request limit. Please try again in an hour.",
		ErrorMessage:     "Sorry, I am having a technical problem. Could you try again?",
	},
}

// Lookup finds an assistant by name, case-insensitively.
func Lookup(name string) (Assistant, bool) {
	a, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

// ByContext finds the assistant bound to an upstream context.
func ByContext(context string) (Assistant, bool) {
	for _, a := range registry {
		if a.Context == context {
			return a, true
		}
	}
	return Assistant{}, false
}

// All returns the assistants sorted by name.
func All() []Assistant {
	out := make([]Assistant, 0, len(registry))
	for _, a := range registry {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResolveModel applies the default model and rejects models the assistant does not offer.
// Assistants without a model list forward nothing.
func (a Assistant) ResolveModel(model string) (string, error) {
	model = strings.ToLower(strings.TrimSpace(model))
	if len(a.Models) == 0 {
		return "", nil
	}
	if model == "" {
		return a.DefaultModel, nil
	}
	for _, m := range a.Models {
		if m == model {
			return m, nil
		}
	}
	return "", fmt.Errorf("model %q is not available for %s (expected one of %s)", model, a.Name, strings.Join(a.Models, ", "))
}
