package structured

import (
	"fmt"
	"strings"

	"github.com/swasthya/homeo-assistant/internal/domain"
)

const (
	diagnosisFormat = `{ "medicines": [{ "name": "string", "symptoms": "string", "potency": "string", "dosage": "string" }] }`
	lookupFormat    = `{ "medicineName": "string", "symptoms": ["string", "string"] }`
)

// BuildInstruction returns the system instruction for a mode and locale.
// The output depends only on its arguments.
func BuildInstruction(mode domain.Mode, locale domain.Locale) string {
	lang := locale.LanguageName()

	var b strings.Builder
	b.WriteString("You are an expert Homeopathy assistant for a doctor.\n")
	b.WriteString("RULES:\n")
	rules := []string{
		fmt.Sprintf("Respond ONLY in %s.", lang),
		fmt.Sprintf("The user's query may be in another language; your response MUST still be in %s.", lang),
		"Your entire output MUST be a single, valid JSON object.",
		"Do NOT wrap the JSON in markdown fences (```).",
		"Do NOT include comments, explanations, or introductory text.",
		`Escape every string value correctly (use \" for quotes inside strings).`,
		"Do NOT use trailing commas.",
		"The response must start with { and end with }.",
	}
	for i, rule := range rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rule)
	}

	b.WriteString("\nTASK:\n")
	switch mode {
	case domain.ModeMedicineLookup:
		b.WriteString("The user will provide a medicine name. List the top 5-7 key symptoms it is used for.\n")
		b.WriteString("\nJSON FORMAT:\n")
		b.WriteString(lookupFormat)
	default:
		b.WriteString("The user will provide symptoms. Identify the 3-5 most relevant homeopathic medicines. " +
			"For each medicine, give its name, the key matching symptoms, and a suggested potency and dosage. " +
			"Omit potency or dosage when they do not apply.\n")
		b.WriteString("\nJSON FORMAT:\n")
		b.WriteString(diagnosisFormat)
	}
	return b.String()
}
