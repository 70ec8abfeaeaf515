package extract

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/calebmorris/trendwatch/internal/llm"
)

// scriptedProvider replays canned responses (or errors) and records every
// request it receives.
type scriptedProvider struct {
	responses []string
	errs      []error
	calls     []llm.Request
}

func (p *scriptedProvider) Name() string    { return "scripted" }
func (p *scriptedProvider) Available() bool { return true }

func (p *scriptedProvider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	i := len(p.calls)
	p.calls = append(p.calls, req)
	if i < len(p.errs) && p.errs[i] != nil {
		return llm.Response{}, p.errs[i]
	}
	if i >= len(p.responses) {
		return llm.Response{}, fmt.Errorf("unexpected call %d", i)
	}
	return llm.Response{Content: p.responses[i], Model: "scripted"}, nil
}

func jsonSpec(validate func(any) (bool, string)) Spec {
	return Spec{
		System:       "system",
		Prompt:       "prompt",
		RepairSystem: "repair system",
		BuildRepair:  buildRepairPrompt("JSON"),
		Parse:        DecodeJSON,
		Validate:     validate,
		MaxTokens:    100,
		JSON:         true,
	}
}

func alwaysValid(any) (bool, string) { return true, "" }

func requireOK(v any) (bool, string) {
	m, ok := v.(map[string]any)
	if !ok || m["ok"] != true {
		return false, `missing "ok": true`
	}
	return true, ""
}

func TestRunValidFirstAttempt(t *testing.T) {
	p := &scriptedProvider{responses: []string{`{"ok": true}`}}

	payload, fail := Run(context.Background(), p, jsonSpec(requireOK))
	if fail != nil {
		t.Fatalf("unexpected failure: %v", fail)
	}
	if len(p.calls) != 1 {
		t.Errorf("provider called %d times, want 1", len(p.calls))
	}
	if m := payload.(map[string]any); m["ok"] != true {
		t.Errorf("payload = %v", payload)
	}
}

func TestRunRepairsInvalidFirstAttempt(t *testing.T) {
	p := &scriptedProvider{responses: []string{`{"ok": false}`, `{"ok": true}`}}

	payload, fail := Run(context.Background(), p, jsonSpec(requireOK))
	if fail != nil {
		t.Fatalf("unexpected failure: %v", fail)
	}
	if len(p.calls) != 2 {
		t.Fatalf("provider called %d times, want 2", len(p.calls))
	}

	repair := p.calls[1]
	if repair.SystemPrompt != "repair system" {
		t.Errorf("repair call system prompt = %q", repair.SystemPrompt)
	}
	if !strings.Contains(repair.UserPrompt, `{"ok": false}`) {
		t.Error("repair prompt does not include the failed raw output")
	}
	if !strings.Contains(repair.UserPrompt, `missing "ok": true`) {
		t.Error("repair prompt does not include the failure reason")
	}
	if payload.(map[string]any)["ok"] != true {
		t.Errorf("payload = %v", payload)
	}
}

func TestRunSecondValidationDecides(t *testing.T) {
	p := &scriptedProvider{responses: []string{`{"ok": false}`, `{"ok": false}`}}

	_, fail := Run(context.Background(), p, jsonSpec(requireOK))
	if fail == nil {
		t.Fatal("expected failure")
	}
	if fail.Kind != ValidationError {
		t.Errorf("Kind = %v, want ValidationError", fail.Kind)
	}
	if len(p.calls) != 2 {
		t.Errorf("provider called %d times, want exactly 2", len(p.calls))
	}
}

func TestRunParseErrorTriggersRepair(t *testing.T) {
	p := &scriptedProvider{responses: []string{`not json at all`, `{"ok": true}`}}

	payload, fail := Run(context.Background(), p, jsonSpec(requireOK))
	if fail != nil {
		t.Fatalf("unexpected failure: %v", fail)
	}
	if len(p.calls) != 2 {
		t.Errorf("provider called %d times, want 2", len(p.calls))
	}
	if payload.(map[string]any)["ok"] != true {
		t.Errorf("payload = %v", payload)
	}
}

func TestRunParseErrorAfterRepair(t *testing.T) {
	p := &scriptedProvider{responses: []string{`garbage`, `still garbage`}}

	_, fail := Run(context.Background(), p, jsonSpec(alwaysValid))
	if fail == nil {
		t.Fatal("expected failure")
	}
	if fail.Kind != ParseError {
		t.Errorf("Kind = %v, want ParseError", fail.Kind)
	}
}

func TestRunProviderErrorFirstCall(t *testing.T) {
	p := &scriptedProvider{errs: []error{fmt.Errorf("connection refused")}}

	_, fail := Run(context.Background(), p, jsonSpec(alwaysValid))
	if fail == nil {
		t.Fatal("expected failure")
	}
	if fail.Kind != ProviderError {
		t.Errorf("Kind = %v, want ProviderError", fail.Kind)
	}
	if len(p.calls) != 1 {
		t.Errorf("provider called %d times, want 1 (no repair after provider error)", len(p.calls))
	}
}

func TestRunProviderErrorOnRepair(t *testing.T) {
	p := &scriptedProvider{
		responses: []string{`{"ok": false}`},
		errs:      []error{nil, fmt.Errorf("timeout")},
	}

	_, fail := Run(context.Background(), p, jsonSpec(requireOK))
	if fail == nil {
		t.Fatal("expected failure")
	}
	if fail.Kind != ProviderError {
		t.Errorf("Kind = %v, want ProviderError", fail.Kind)
	}
	if len(p.calls) != 2 {
		t.Errorf("provider called %d times, want 2", len(p.calls))
	}
}

func TestRunNeverMoreThanTwoCalls(t *testing.T) {
	p := &scriptedProvider{responses: []string{`bad`, `bad`, `{"ok": true}`}}

	_, fail := Run(context.Background(), p, jsonSpec(requireOK))
	if fail == nil {
		t.Fatal("expected failure: the third, valid response must never be requested")
	}
	if len(p.calls) != 2 {
		t.Errorf("provider called %d times, want 2", len(p.calls))
	}
}

func TestRunNilParsePassesRawThrough(t *testing.T) {
	p := &scriptedProvider{responses: []string{"raw text output"}}

	spec := jsonSpec(nil)
	spec.Parse = nil
	spec.Validate = func(v any) (bool, string) {
		if v.(string) != "raw text output" {
			return false, "unexpected payload"
		}
		return true, ""
	}

	payload, fail := Run(context.Background(), p, spec)
	if fail != nil {
		t.Fatalf("unexpected failure: %v", fail)
	}
	if payload.(string) != "raw text output" {
		t.Errorf("payload = %v", payload)
	}
}

func TestRepairTokensFallBackToMaxTokens(t *testing.T) {
	p := &scriptedProvider{responses: []string{`{"ok": false}`, `{"ok": true}`}}

	spec := jsonSpec(requireOK)
	spec.MaxTokens = 1234
	if _, fail := Run(context.Background(), p, spec); fail != nil {
		t.Fatalf("unexpected failure: %v", fail)
	}
	if got := p.calls[1].MaxTokens; got != 1234 {
		t.Errorf("repair MaxTokens = %d, want 1234", got)
	}

	p2 := &scriptedProvider{responses: []string{`{"ok": false}`, `{"ok": true}`}}
	spec.RepairMaxTokens = 800
	if _, fail := Run(context.Background(), p2, spec); fail != nil {
		t.Fatalf("unexpected failure: %v", fail)
	}
	if got := p2.calls[1].MaxTokens; got != 800 {
		t.Errorf("repair MaxTokens = %d, want 800", got)
	}
}

func TestDecodeJSONKeepsNumbers(t *testing.T) {
	v, err := DecodeJSON(`{"score": 85}`)
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if n, ok := asInt(v.(map[string]any)["score"]); !ok || n != 85 {
		t.Errorf("asInt = %d, %v; want 85, true", n, ok)
	}

	v, err = DecodeJSON(`{"score": 85.5}`)
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if _, ok := asInt(v.(map[string]any)["score"]); ok {
		t.Error("asInt accepted a fractional number")
	}
}

func TestFailureKindString(t *testing.T) {
	tests := []struct {
		kind FailureKind
		want string
	}{
		{ParseError, "parse"},
		{ValidationError, "validation"},
		{ProviderError, "provider"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("hello", 10); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := truncateRunes("hello", 3); got != "hel" {
		t.Errorf("got %q", got)
	}
	if got := truncateRunes("日本語のテキスト", 3); got != "日本語" {
		t.Errorf("got %q", got)
	}
	if got := truncateRunes("x", 0); got != "" {
		t.Errorf("got %q", got)
	}
}
