// Package coverletter builds the cover-letter prompt and lays the generated letter out as a PDF.
package coverletter

import (
	"fmt"
	"strings"
)

// Form is what the user fills in before a letter is generated.
type Form struct {
	Name           string `json:"name"`
	Age            string `json:"age"`
	Language       string `json:"language"`
	Resume         string `json:"resume"`
	JobDescription string `json:"jobDescription"`
	Motivation     string `json:"motivation"`
}

var (
	// Ages lists the accepted age brackets.
	Ages = []string{"18-24", "25-34", "35-44", "45-54", "55+"}
	// Languages lists the letter languages, english first as the default.
	Languages = []string{"english", "french", "spanish"}
)

const DefaultLanguage = "english"

// FormError is a user-facing validation failure.
type FormError struct {
	Field   string
	Message string
}

func (e *FormError) Error() string { return e.Message }

// Normalize trims fields and applies the default language.
func (f Form) Normalize() Form {
	f.Name = strings.TrimSpace(f.Name)
	f.Age = strings.TrimSpace(f.Age)
	f.Language = strings.ToLower(strings.TrimSpace(f.Language))
	if f.Language == "" {
		f.Language = DefaultLanguage
	}
	f.Resume = strings.TrimSpace(f.Resume)
	f.JobDescription = strings.TrimSpace(f.JobDescription)
	f.Motivation = strings.TrimSpace(f.Motivation)
	return f
}

// Validate expects a normalized form.
func (f Form) Validate() error {
	if f.JobDescription == "" {
		return &FormError{Field: "jobDescription", Message: "Please provide the job description"}
	}
	if f.Age != "" && !contains(Ages, f.Age) {
		return &FormError{Field: "age", Message: fmt.Sprintf("Unsupported age range %q", f.Age)}
	}
	if !contains(Languages, f.Language) {
		return &FormError{Field: "language", Message: fmt.Sprintf("Unsupported language %q", f.Language)}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// BuildPrompt renders the message sent to the aeve assistant.
func BuildPrompt(f Form) string {
	var b strings.Builder
	b.WriteString("# User Information\n")
	fmt.Fprintf(&b, "Name: %s\n", orDefault(f.Name, "Not provided"))
	fmt.Fprintf(&b, "Age: %s\n", orDefault(f.Age, "Not provided"))
	fmt.Fprintf(&b, "Preferred Language: %s\n\n", f.Language)

	b.WriteString("# Resume Content\n")
	b.WriteString(orDefault(f.Resume, "No resume uploaded"))
	b.WriteString("\n\n# Job Description\n")
	b.WriteString(f.JobDescription)
	b.WriteString("\n\n# Personal Motivation\n")
	b.WriteString(orDefault(f.Motivation, "Not provided"))

	b.WriteString("\n\n# Task\n")
	b.WriteString("Please generate a concise cover letter for this job application based on the provided information.\n")
	fmt.Fprintf(&b, "Write the cover letter in %s.\n", f.Language)
	b.WriteString("Incorporate the personal motivation if provided to make the letter more authentic and personalized.\n")
	b.WriteString("If the user requested bullet points, ensure they are properly formatted with a proper line break before each bullet point and a blank line after the last bullet point.")
	return b.String()
}
