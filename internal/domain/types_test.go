package domain

import "testing"

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"diagnosis", ModeSymptomDiagnosis, false},
		{"LOOKUP", ModeMedicineLookup, false},
		{"medicine_lookup", ModeMedicineLookup, false},
		{"home", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseLocale(t *testing.T) {
	if l, err := ParseLocale("hi"); err != nil || l != LocaleHindi {
		t.Errorf("Expected hi-IN, got %q (%v)", l, err)
	}
	if l, err := ParseLocale("en-US"); err != nil || l != LocaleEnglish {
		t.Errorf("Expected en-US, got %q (%v)", l, err)
	}
	if _, err := ParseLocale("fr-FR"); err == nil {
		t.Error("Expected error for unsupported locale")
	}
}

func TestLocale_ToggleAndName(t *testing.T) {
	if LocaleHindi.Toggle() != LocaleEnglish || LocaleEnglish.Toggle() != LocaleHindi {
		t.Error("Toggle should switch between the two locales")
	}
	if LocaleHindi.LanguageName() != "Hindi" {
		t.Errorf("Expected Hindi, got %s", LocaleHindi.LanguageName())
	}
	if LocaleEnglish.LanguageName() != "English" {
		t.Errorf("Expected English, got %s", LocaleEnglish.LanguageName())
	}
}

func TestTranscript_IsEmpty(t *testing.T) {
	if !Transcript("  \n").IsEmpty() {
		t.Error("Whitespace transcript should be empty")
	}
	if Transcript("fever").IsEmpty() {
		t.Error("Non-blank transcript should not be empty")
	}
}

func TestStructuredResult_Kind(t *testing.T) {
	diag := &StructuredResult{Medicines: []Medicine{{Name: "Belladonna", KeySymptoms: "sudden fever"}}}
	if diag.Kind() != ResultDiagnosisList {
		t.Errorf("Expected diagnosis list, got %s", diag.Kind())
	}
	lookup := &StructuredResult{MedicineName: "Arnica", Symptoms: []string{"bruising"}}
	if lookup.Kind() != ResultSymptomList {
		t.Errorf("Expected symptom list, got %s", lookup.Kind())
	}
}
