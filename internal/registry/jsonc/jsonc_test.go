package jsonc

import (
	"encoding/json"
	"testing"
)

func TestStrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			"line comments",
			`{
				// build task
				"label": "build" // trailing
			}`,
		},
		{
			"block comments",
			`{ /* a
			multiline comment */ "label": "build" }`,
		},
		{
			"trailing commas",
			`{ "tasks": [ { "label": "build", }, ], }`,
		},
		{
			"comment markers inside strings survive",
			`{ "label": "not // a comment", "detail": "nor /* this */" }`,
		},
		{
			"escaped quotes",
			`{ "label": "say \"hi\" // still a string" }`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clean := Strip([]byte(tt.input))
			var v any
			if err := json.Unmarshal(clean, &v); err != nil {
				t.Fatalf("stripped output is not valid JSON: %v\n%s", err, clean)
			}
		})
	}
}

func TestStrip_PreservesStringContent(t *testing.T) {
	input := `{ "label": "not // a comment" }`

	var v map[string]any
	if err := json.Unmarshal(Strip([]byte(input)), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v["label"] != "not // a comment" {
		t.Errorf("label = %q, want comment marker preserved inside string", v["label"])
	}
}

func TestStrip_PreservesOffsets(t *testing.T) {
	input := "{\n// comment\n\"a\": 1\n}"
	clean := Strip([]byte(input))
	if len(clean) != len(input) {
		t.Errorf("length changed: %d != %d", len(clean), len(input))
	}
}
