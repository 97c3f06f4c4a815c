package domain

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects which kind of answer the assistant produces.
type Mode string

const (
	ModeSymptomDiagnosis Mode = "diagnosis" // Symptoms in, candidate medicines out
	ModeMedicineLookup   Mode = "lookup"    // Medicine name in, key symptoms out
)

// ParseMode converts a query parameter or request field into a Mode
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "diagnosis", "symptom_diagnosis":
		return ModeSymptomDiagnosis, nil
	case "lookup", "medicine_lookup":
		return ModeMedicineLookup, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Locale is a spoken and output language
type Locale string

const (
	LocaleHindi   Locale = "hi-IN"
	LocaleEnglish Locale = "en-US"
)

// ParseLocale accepts a BCP-47 tag or its bare language subtag.
func ParseLocale(s string) (Locale, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hi-in", "hi":
		return LocaleHindi, nil
	case "en-us", "en":
		return LocaleEnglish, nil
	}
	return "", fmt.Errorf("unknown locale %q", s)
}

// LanguageName returns the English name of the language, used in model instructions
func (l Locale) LanguageName() string {
	if l == LocaleHindi {
		return "Hindi"
	}
	return "English"
}

// Toggle returns the other supported locale.
func (l Locale) Toggle() Locale {
	if l == LocaleHindi {
		return LocaleEnglish
	}
	return LocaleHindi
}

// Transcript is the finalized text of one recording gesture.
type Transcript string

// IsEmpty reports whether the transcript carries no text worth submitting
func (t Transcript) IsEmpty() bool {
	return strings.TrimSpace(string(t)) == ""
}

// ResultKind identifies the populated variant of a StructuredResult
type ResultKind string

const (
	ResultDiagnosisList ResultKind = "diagnosis_list"
	ResultSymptomList   ResultKind = "symptom_list"
)

// Medicine is one suggestion in a diagnosis list.
type Medicine struct {
	Name        string `json:"name"`
	KeySymptoms string `json:"symptoms"`
	Potency     string `json:"potency,omitempty"`
	Dosage      string `json:"dosage,omitempty"`
}

// StructuredResult is the validated model answer. Exactly one of
// Medicines or (MedicineName, Symptoms) is populated.
type StructuredResult struct {
	Medicines    []Medicine `json:"medicines,omitempty"`
	MedicineName string     `json:"medicineName,omitempty"`
	Symptoms     []string   `json:"symptoms,omitempty"`
}

// Kind reports which variant is populated
func (r *StructuredResult) Kind() ResultKind {
	if len(r.Medicines) > 0 {
		return ResultDiagnosisList
	}
	return ResultSymptomList
}

// HistoryEntry is one successfully answered query.
type HistoryEntry struct {
	ID         string            `json:"id"`
	Mode       Mode              `json:"mode"`
	Transcript Transcript        `json:"transcript"`
	Result     *StructuredResult `json:"result"`
	Locale     Locale            `json:"language"`
	CreatedAt  time.Time         `json:"timestamp"`
}
