// Package extract turns unreliable LLM output into validated structured
// payloads. A single generic validate-then-repair protocol backs all three
// extraction stages (sentiment, clustering, mindmap); each stage supplies its
// own prompts, parser, validator, and repair-prompt builder.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/calebmorris/trendwatch/internal/llm"
	"github.com/calebmorris/trendwatch/internal/logging"
)

// FailureKind classifies why an extraction could not produce a payload.
type FailureKind int

const (
	// ParseError means the provider's output was not machine-readable.
	ParseError FailureKind = iota
	// ValidationError means the output was readable but schema-violating.
	ValidationError
	// ProviderError means the provider call itself failed.
	ProviderError
)

func (k FailureKind) String() string {
	switch k {
	case ParseError:
		return "parse"
	case ValidationError:
		return "validation"
	case ProviderError:
		return "provider"
	default:
		return "unknown"
	}
}

// Failure is the typed terminal error of an extraction attempt.
type Failure struct {
	Kind   FailureKind
	Detail string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("extraction failed (%s): %s", f.Kind, f.Detail)
}

// Spec describes one extraction: the prompts, how to parse the raw response,
// how to validate the parsed payload, and how to phrase the repair request.
type Spec struct {
	System       string
	Prompt       string
	RepairSystem string
	// BuildRepair composes the repair user prompt from the failed raw
	// response and the parse/validation reason.
	BuildRepair func(raw, reason string) string
	// Parse converts the raw response into a payload. A nil Parse passes
	// the raw string through unchanged.
	Parse func(raw string) (any, error)
	// Validate checks the parsed payload against the stage's schema.
	Validate func(payload any) (ok bool, reason string)

	MaxTokens       int
	Temperature     float64
	RepairMaxTokens int
	RepairTemp      float64
	JSON            bool
}

// Run executes the validate-then-repair protocol: one provider call, parse,
// validate; on parse or validation failure exactly one repair call with the
// error fed back; parse and validate again. Never more than two provider
// calls. The outcome of the whole extraction rests on the second validation.
func Run(ctx context.Context, provider llm.Provider, spec Spec) (any, *Failure) {
	resp, err := provider.Generate(ctx, llm.Request{
		SystemPrompt: spec.System,
		UserPrompt:   spec.Prompt,
		MaxTokens:    spec.MaxTokens,
		Temperature:  spec.Temperature,
		JSON:         spec.JSON,
	})
	if err != nil {
		return nil, &Failure{Kind: ProviderError, Detail: err.Error()}
	}

	payload, fail := parseAndValidate(spec, resp.Content)
	if fail == nil {
		return payload, nil
	}

	logging.Debug("extraction attempt invalid, issuing repair call",
		"kind", fail.Kind.String(), "reason", fail.Detail)

	repairResp, err := provider.Generate(ctx, llm.Request{
		SystemPrompt: spec.RepairSystem,
		UserPrompt:   spec.BuildRepair(resp.Content, fail.Detail),
		MaxTokens:    repairTokens(spec),
		Temperature:  spec.RepairTemp,
		JSON:         spec.JSON,
	})
	if err != nil {
		return nil, &Failure{Kind: ProviderError, Detail: err.Error()}
	}

	payload, fail = parseAndValidate(spec, repairResp.Content)
	if fail != nil {
		return nil, fail
	}
	return payload, nil
}

func parseAndValidate(spec Spec, raw string) (any, *Failure) {
	var payload any = raw
	if spec.Parse != nil {
		parsed, err := spec.Parse(raw)
		if err != nil {
			return nil, &Failure{Kind: ParseError, Detail: err.Error()}
		}
		payload = parsed
	}

	if ok, reason := spec.Validate(payload); !ok {
		return nil, &Failure{Kind: ValidationError, Detail: reason}
	}
	return payload, nil
}

func repairTokens(spec Spec) int {
	if spec.RepairMaxTokens > 0 {
		return spec.RepairMaxTokens
	}
	return spec.MaxTokens
}

// DecodeJSON parses a raw response as a single JSON document. Numbers are
// kept as json.Number so validators can distinguish integers from floats.
func DecodeJSON(raw string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("JSON parse error: %v", err)
	}
	return v, nil
}

// truncateRunes shortens s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
