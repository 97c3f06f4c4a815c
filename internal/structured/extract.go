package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/swasthya/homeo-assistant/internal/domain"
)

// Leading/trailing triple backticks, optional language tag, optional whitespace.
var fencePattern = regexp.MustCompile("(?s)^```(\\w*)?\\s*\\n?(.*?)\\n?\\s*```$")

// UnwrapFence trims raw and strips a surrounding fenced code block if present
func UnwrapFence(raw string) string {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil && m[2] != "" {
		return strings.TrimSpace(m[2])
	}
	return text
}

type wireMedicine struct {
	Name        string `json:"name"`
	Symptoms    string `json:"symptoms"`
	KeySymptoms string `json:"keySymptoms"`
	Potency     string `json:"potency"`
	Dosage      string `json:"dosage"`
}

// Decode parses a model reply into a StructuredResult. The reply may be
// fenced. Exactly one result shape must be present.
func Decode(reply string) (*domain.StructuredResult, error) {
	text := UnwrapFence(reply)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, fmt.Errorf("reply is not a JSON object: %w", err)
	}

	_, hasMedicines := present(fields, "medicines")
	_, hasName := present(fields, "medicineName")
	_, hasSymptoms := present(fields, "symptoms")
	hasLookup := hasName && hasSymptoms

	switch {
	case hasMedicines && hasLookup:
		return nil, errors.New("reply contains both medicines and medicineName/symptoms")
	case hasMedicines:
		return decodeDiagnosis(fields["medicines"])
	case hasLookup:
		return decodeLookup(fields["medicineName"], fields["symptoms"])
	}
	return nil, errors.New("reply contains neither medicines nor medicineName/symptoms")
}

func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := fields[key]
	if !ok || string(v) == "null" {
		return nil, false
	}
	return v, true
}

func decodeDiagnosis(raw json.RawMessage) (*domain.StructuredResult, error) {
	var wire []wireMedicine
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("medicines must be an array of objects: %w", err)
	}
	if len(wire) == 0 {
		return nil, errors.New("medicines is empty")
	}

	medicines := make([]domain.Medicine, 0, len(wire))
	for i, m := range wire {
		symptoms := m.Symptoms
		if strings.TrimSpace(symptoms) == "" {
			symptoms = m.KeySymptoms
		}
		if strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("medicines[%d]: name is required", i)
		}
		if strings.TrimSpace(symptoms) == "" {
			return nil, fmt.Errorf("medicines[%d]: symptoms are required", i)
		}
		medicines = append(medicines, domain.Medicine{
			Name:        m.Name,
			KeySymptoms: symptoms,
			Potency:     m.Potency,
			Dosage:      m.Dosage,
		})
	}
	return &domain.StructuredResult{Medicines: medicines}, nil
}

func decodeLookup(rawName, rawSymptoms json.RawMessage) (*domain.StructuredResult, error) {
	var name string
	if err := json.Unmarshal(rawName, &name); err != nil {
		return nil, fmt.Errorf("medicineName must be a string: %w", err)
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("medicineName is empty")
	}

	var symptoms []string
	if err := json.Unmarshal(rawSymptoms, &symptoms); err != nil {
		return nil, fmt.Errorf("symptoms must be an array of strings: %w", err)
	}
	return &domain.StructuredResult{MedicineName: name, Symptoms: symptoms}, nil
}
