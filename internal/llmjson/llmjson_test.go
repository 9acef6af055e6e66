package llmjson

import "testing"

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  \n{\"a\": 1}\n  ", `{"a": 1}`},
		{"unclosed fence", "```json\n{\"a\": 1}", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFences(tt.in); got != tt.want {
				t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestUnmarshal(t *testing.T) {
	type payload struct {
		Decision   string  `json:"decision"`
		Confidence float64 `json:"confidence"`
	}

	t.Run("strict json", func(t *testing.T) {
		var p payload
		if err := Unmarshal(`{"decision": "proceed", "confidence": 0.8}`, &p); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if p.Decision != "proceed" || p.Confidence != 0.8 {
			t.Errorf("got %+v", p)
		}
	})

	t.Run("fenced json", func(t *testing.T) {
		var p payload
		if err := Unmarshal("```json\n{\"decision\": \"hold\"}\n```", &p); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if p.Decision != "hold" {
			t.Errorf("got %+v", p)
		}
	})

	t.Run("repairable json", func(t *testing.T) {
		var p payload
		// trailing comma and single quotes, typical model damage
		if err := Unmarshal(`{'decision': 'proceed', 'confidence': 0.9,}`, &p); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if p.Decision != "proceed" {
			t.Errorf("got %+v", p)
		}
	})

	t.Run("hopeless input", func(t *testing.T) {
		var p payload
		if err := Unmarshal("I cannot answer that.", &p); err == nil {
			t.Fatal("expected error for non-JSON input")
		}
	})
}
