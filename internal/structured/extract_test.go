package structured

import (
	"testing"

	"github.com/swasthya/homeo-assistant/internal/domain"
)

func TestUnwrapFence(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"no fence", `  {"a":1}  `, `{"a":1}`},
		{"fence on one line", "```{\"a\":1}```", `{"a":1}`},
		{"surrounding whitespace", "\n  ```json\n{\"a\":1}\n```  \n", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UnwrapFence(tt.raw); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDecode_FencedLookup(t *testing.T) {
	reply := "```json\n{\"medicineName\":\"Arnica\",\"symptoms\":[\"bruising\"]}\n```"

	result, err := Decode(reply)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Kind() != domain.ResultSymptomList {
		t.Errorf("Expected symptom list, got %s", result.Kind())
	}
	if result.MedicineName != "Arnica" {
		t.Errorf("Expected Arnica, got %q", result.MedicineName)
	}
	if len(result.Symptoms) != 1 || result.Symptoms[0] != "bruising" {
		t.Errorf("Expected [bruising], got %v", result.Symptoms)
	}
}

func TestDecode_Diagnosis(t *testing.T) {
	reply := `{"medicines":[
		{"name":"Belladonna","symptoms":"sudden high fever, red face","potency":"30C","dosage":"3 times a day"},
		{"name":"Aconite","keySymptoms":"fever after cold wind"}
	]}`

	result, err := Decode(reply)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Kind() != domain.ResultDiagnosisList {
		t.Fatalf("Expected diagnosis list, got %s", result.Kind())
	}
	if len(result.Medicines) != 2 {
		t.Fatalf("Expected 2 medicines, got %d", len(result.Medicines))
	}
	if result.Medicines[0].Potency != "30C" || result.Medicines[0].Dosage != "3 times a day" {
		t.Errorf("Expected potency and dosage to be kept, got %+v", result.Medicines[0])
	}
	if result.Medicines[1].KeySymptoms != "fever after cold wind" {
		t.Errorf("Expected keySymptoms fallback, got %q", result.Medicines[1].KeySymptoms)
	}
	if result.Medicines[1].Potency != "" || result.Medicines[1].Dosage != "" {
		t.Errorf("Expected absent potency and dosage, got %+v", result.Medicines[1])
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "Here are some medicines: Arnica"},
		{"json array", `[{"name":"Arnica"}]`},
		{"neither shape", `{"answer":"Arnica"}`},
		{"both shapes", `{"medicines":[{"name":"A","symptoms":"x"}],"medicineName":"B","symptoms":["y"]}`},
		{"empty medicines", `{"medicines":[]}`},
		{"medicine without name", `{"medicines":[{"symptoms":"x"}]}`},
		{"medicine without symptoms", `{"medicines":[{"name":"Arnica"}]}`},
		{"lookup with empty name", `{"medicineName":"","symptoms":["x"]}`},
		{"lookup with string symptoms", `{"medicineName":"Arnica","symptoms":"bruising"}`},
		{"lookup without symptoms", `{"medicineName":"Arnica"}`},
		{"null medicines", `{"medicines":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Decode(tt.reply)
			if err == nil {
				t.Errorf("Expected error, got result %+v", result)
			}
		})
	}
}
