// Package vision binds image-based analysis kinds (paint, damage, value) to
// an OpenRouter-style multimodal model. The image travels as a data URL; the
// model must answer with the kind's JSON schema and nothing else.
package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"mivvo/internal/config"
	"mivvo/internal/providers"
	"mivvo/internal/providers/openrouter"
	"mivvo/internal/report"
	"mivvo/internal/services"
)

// Binding is the image-analysis provider binding.
type Binding struct {
	name   string
	client *openrouter.Client
}

// New builds a binding from one provider configuration block.
func New(name string, cfg config.Provider, opts ...openrouter.Option) *Binding {
	if strings.TrimSpace(name) == "" {
		name = "vision"
	}
	return &Binding{
		name:   name,
		client: openrouter.NewClient(cfg, opts...),
	}
}

// Name identifies the binding in attempt logs.
func (b *Binding) Name() string {
	return b.name
}

// Analyze runs one image through the model for the requested kind and
// validates the structured result.
func (b *Binding) Analyze(ctx context.Context, req providers.Request) (*providers.Result, error) {
	prompt, err := promptFor(req.Kind)
	if err != nil {
		return nil, err
	}
	if len(req.Data) == 0 {
		return nil, services.Wrap(services.ErrAssetMissing, "vision", "analyze", "no image payload", nil)
	}

	mime := req.MIME
	if mime == "" {
		mime = http.DetectContentType(req.Data)
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(req.Data))

	parts := []openrouter.ContentPart{
		openrouter.TextPart(userInstruction(req.Kind)),
		openrouter.ImagePart(dataURL),
	}
	content, err := b.client.CompleteJSON(ctx, prompt, parts)
	if err != nil {
		return nil, err
	}

	result := &providers.Result{
		Kind:     req.Kind,
		Provider: b.name,
		Model:    b.client.Model(),
		AssetRef: req.AssetRef,
		Raw:      content,
	}
	switch req.Kind {
	case report.KindPaint:
		var parsed providers.PaintResult
		if err := openrouter.DecodeJSON(content, &parsed); err != nil {
			return nil, services.Wrap(services.ErrIncompleteResponse, "vision", "decode", "paint payload", err)
		}
		normalizeIssues(parsed.Issues)
		result.Paint = &parsed
	case report.KindDamage:
		var parsed providers.DamageResult
		if err := openrouter.DecodeJSON(content, &parsed); err != nil {
			return nil, services.Wrap(services.ErrIncompleteResponse, "vision", "decode", "damage payload", err)
		}
		normalizeIssues(parsed.Issues)
		result.Damage = &parsed
	case report.KindValue:
		var parsed providers.ValueResult
		if err := openrouter.DecodeJSON(content, &parsed); err != nil {
			return nil, services.Wrap(services.ErrIncompleteResponse, "vision", "decode", "value payload", err)
		}
		normalizeIssues(parsed.Issues)
		result.Value = &parsed
	default:
		return nil, services.Wrap(services.ErrValidation, "vision", "analyze",
			fmt.Sprintf("kind %q is not image-based", req.Kind), nil)
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

func normalizeIssues(issues []providers.Issue) {
	for i := range issues {
		issues[i].Severity = providers.ParseSeverity(string(issues[i].Severity))
		issues[i].Title = strings.TrimSpace(issues[i].Title)
	}
}

func promptFor(kind report.AnalysisKind) (string, error) {
	switch kind {
	case report.KindPaint:
		return paintPrompt, nil
	case report.KindDamage:
		return damagePrompt, nil
	case report.KindValue:
		return valuePrompt, nil
	default:
		return "", services.Wrap(services.ErrValidation, "vision", "prompt",
			fmt.Sprintf("no vision prompt for kind %q", kind), nil)
	}
}

func userInstruction(kind report.AnalysisKind) string {
	return fmt.Sprintf("Analyze the attached vehicle photo for the %s inspection. Respond with the JSON schema only.", kind)
}
