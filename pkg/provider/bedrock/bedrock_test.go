package bedrock

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/veylan/synapnode/pkg/provider"
)

func TestModelFamily(t *testing.T) {
	cases := map[string]string{
		"anthropic.claude-3-sonnet-20240229-v1:0": "anthropic",
		"cohere.command-r-v1:0":                   "cohere",
		"meta.llama3-70b-instruct-v1:0":           "meta",
		"mistral.mistral-large-2402-v1:0":         "mistral",
		"amazon.titan-text-express-v1":            "amazon",
		"ai21.j2-ultra-v1":                        "ai21",
		"noprefix":                                "noprefix",
	}
	for model, want := range cases {
		if got := modelFamily(model); got != want {
			t.Errorf("modelFamily(%q) = %q, want %q", model, got, want)
		}
	}
}

func decodeBody(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("request body is not valid JSON: %v", err)
	}
	return m
}

func TestBuildNativeRequestCohere(t *testing.T) {
	req := provider.CompletionRequest{
		Model:       "cohere.command-r-v1:0",
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
		Temperature: 0.7,
		TopP:        0.9,
		MaxTokens:   100,
		Seed:        42,
	}
	raw, err := buildNativeRequest(context.Background(), familyCohere, req)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	body := decodeBody(t, raw)
	if body["message"] != "hi" {
		t.Errorf("expected message from first transcript entry, got %v", body["message"])
	}
	if body["p"] != 0.9 {
		t.Errorf("expected cohere top_p key 'p', got %v", body["p"])
	}
	if body["seed"] != float64(42) {
		t.Errorf("expected seed 42, got %v", body["seed"])
	}
}

func TestBuildNativeRequestMetaClampsGenLen(t *testing.T) {
	req := provider.CompletionRequest{
		Model:     "meta.llama3-70b-instruct-v1:0",
		Messages:  []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
		MaxTokens: 4096,
	}
	raw, err := buildNativeRequest(context.Background(), familyMeta, req)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	body := decodeBody(t, raw)
	if body["max_gen_len"] != float64(metaMaxGenLen) {
		t.Errorf("expected max_gen_len clamped to %d, got %v", metaMaxGenLen, body["max_gen_len"])
	}
	if _, ok := body["prompt"]; !ok {
		t.Error("expected meta prompt key")
	}
}

func TestBuildNativeRequestAnthropicSystem(t *testing.T) {
	req := provider.CompletionRequest{
		Model: "anthropic.claude-3-sonnet-20240229-v1:0",
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: "be terse"},
			{Role: provider.RoleUser, Content: "hi"},
		},
		MaxTokens: 256,
	}
	raw, err := buildNativeRequest(context.Background(), familyAnthropic, req)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	body := decodeBody(t, raw)
	if body["system"] != "be terse" {
		t.Errorf("expected top-level system field, got %v", body["system"])
	}
	if body["anthropic_version"] != "bedrock-2023-05-31" {
		t.Errorf("expected bedrock anthropic version, got %v", body["anthropic_version"])
	}
	msgs, ok := body["messages"].([]any)
	if !ok || len(msgs) != 1 {
		t.Fatalf("expected 1 converted message, got %v", body["messages"])
	}
}

func TestBuildNativeRequestAmazonShape(t *testing.T) {
	req := provider.CompletionRequest{
		Model:       "amazon.titan-text-express-v1",
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
		Temperature: 0.5,
		TopP:        0.8,
		MaxTokens:   128,
	}
	raw, err := buildNativeRequest(context.Background(), familyAmazon, req)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	body := decodeBody(t, raw)
	cfg, ok := body["textGenerationConfig"].(map[string]any)
	if !ok {
		t.Fatalf("expected textGenerationConfig, got %v", body)
	}
	if cfg["maxTokenCount"] != float64(128) {
		t.Errorf("expected maxTokenCount 128, got %v", cfg["maxTokenCount"])
	}
}

func TestBuildNativeRequestUnknownFamily(t *testing.T) {
	req := provider.CompletionRequest{Model: "surprise.model"}
	if _, err := buildNativeRequest(context.Background(), "surprise", req); err == nil {
		t.Error("expected error for unknown family")
	}
}

func TestExtractTokenPerFamily(t *testing.T) {
	cases := []struct {
		family string
		raw    string
		want   string
	}{
		{familyCohere, `{"text":"tok"}`, "tok"},
		{familyMeta, `{"generation":"tok"}`, "tok"},
		{familyAnthropic, `{"type":"content_block_delta","delta":{"type":"text_delta","text":"tok"}}`, "tok"},
		{familyAnthropic, `{"type":"message_start"}`, ""},
		{familyMistral, `{"outputs":[{"text":"tok"}]}`, "tok"},
		{familyAmazon, `{"outputText":"tok"}`, "tok"},
		{familyAI21, `{"completions":[{"data":{"text":"tok"}}]}`, "tok"},
	}
	for _, tc := range cases {
		got, err := extractToken(tc.family, []byte(tc.raw))
		if err != nil {
			t.Errorf("extractToken(%s) failed: %v", tc.family, err)
			continue
		}
		if got != tc.want {
			t.Errorf("extractToken(%s) = %q, want %q", tc.family, got, tc.want)
		}
	}
}

func TestExtractTokenMalformedChunk(t *testing.T) {
	if _, err := extractToken(familyCohere, []byte("{nope")); err == nil {
		t.Error("expected error for malformed chunk")
	}
}

func TestSingleStreamYieldsOnce(t *testing.T) {
	s := &singleStream{text: "whole answer"}

	chunk, err := s.Next()
	if err != nil {
		t.Fatalf("first Next failed: %v", err)
	}
	if chunk.Delta != "whole answer" {
		t.Errorf("expected full text, got %q", chunk.Delta)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after single chunk, got %v", err)
	}
}
