package poe

import (
	"encoding/json"
	"testing"
)

func TestProtocolMessageClone(t *testing.T) {
	orig := ProtocolMessage{
		Role:    RoleUser,
		Content: "hello",
		Attachments: []Attachment{{URL: "https://example.com/a.png"}},
	}
	clone := orig.Clone()
	clone.Attachments[0].URL = "mutated"

	if orig.Attachments[0].URL != "https://example.com/a.png" {
		t.Fatalf("Clone aliased the attachment slice: original was mutated")
	}
}

func TestProtocolMessageEqual(t *testing.T) {
	a := ProtocolMessage{Role: RoleUser, Content: "hi"}
	b := ProtocolMessage{Role: RoleUser, Content: "hi", ContentType: ContentTypeMarkdown}

	if !a.Equal(b) {
		t.Fatalf("expected equal messages: default content type should match explicit markdown")
	}
}

func TestQueryRequestCloneIndependence(t *testing.T) {
	req := QueryRequest{
		Query: []ProtocolMessage{{Role: RoleUser, Content: "a"}},
		Sampling: SamplingConfig{
			StopSequences: []string{"stop"},
			LogitBias:     map[string]float64{"x": 1},
		},
	}
	clone := req.Clone()
	clone.Query[0].Content = "mutated"
	clone.Sampling.StopSequences[0] = "mutated"
	clone.Sampling.LogitBias["x"] = 99

	if req.Query[0].Content != "a" {
		t.Fatalf("Clone aliased Query slice")
	}
	if req.Sampling.StopSequences[0] != "stop" {
		t.Fatalf("Clone aliased StopSequences slice")
	}
	if req.Sampling.LogitBias["x"] != 1 {
		t.Fatalf("Clone aliased LogitBias map")
	}
}

func TestProtocolMessageRoundTripsUnknownFields(t *testing.T) {
	wire := []byte(`{"role":"user","content":"hi","future_field":"keep me"}`)

	var m ProtocolMessage
	if err := json.Unmarshal(wire, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m.Extra["future_field"] != "keep me" {
		t.Fatalf("expected unknown field to land in Extra, got %v", m.Extra)
	}

	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal round trip: %v", err)
	}
	if back["future_field"] != "keep me" {
		t.Fatalf("expected round-tripped payload to keep unknown field, got %v", back)
	}
}

func TestQueryRequestRoundTripsUnknownFields(t *testing.T) {
	wire := []byte(`{"version":"1.2","type":"query","user_id":"u1","conversation_id":"c1",` +
		`"message_id":"m1","query":[],"experimental_flag":true}`)

	var r QueryRequest
	if err := json.Unmarshal(wire, &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if r.Extra["experimental_flag"] != true {
		t.Fatalf("expected unknown field to land in Extra, got %v", r.Extra)
	}

	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal round trip: %v", err)
	}
	if back["experimental_flag"] != true {
		t.Fatalf("expected round-tripped payload to keep unknown field, got %v", back)
	}
}

func TestNewIdentifierUniqueAndHyphenFree(t *testing.T) {
	a := NewIdentifier()
	b := NewIdentifier()
	if a == b {
		t.Fatalf("expected distinct identifiers")
	}
	for _, r := range string(a) {
		if r == '-' {
			t.Fatalf("identifier contains a hyphen: %q", a)
		}
	}
}
