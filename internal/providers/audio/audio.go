// Package audio binds the engine-sound analysis kind to an OpenRouter-style
// multimodal model. The clip travels base64-encoded as an input_audio part.
package audio

import (
	"context"
	"encoding/base64"
	"strings"

	"mivvo/internal/config"
	"mivvo/internal/providers"
	"mivvo/internal/providers/openrouter"
	"mivvo/internal/report"
	"mivvo/internal/services"
)

const enginePrompt = `You are a master mechanic diagnosing engine health by sound. Listen to the attached engine recording.

Respond with JSON only, exactly this schema:
{
  "engine_condition": "<excellent|good|fair|poor|critical>",
  "rpm_estimate": "<idle RPM estimate or unknown>",
  "issues": [
    {"title": "<short issue name>", "severity": "<low|medium|high|critical>", "area": "<engine subsystem>", "description": "<one sentence>"}
  ],
  "confidence": <0.0-1.0>,
  "summary": "<two sentences at most>"
}

Report knocking, misfires, belt squeal, exhaust leaks, and irregular idle as issues. An empty issues array means the engine sounds healthy. Never invent sounds you cannot hear.`

// Binding is the engine-audio provider binding.
type Binding struct {
	name   string
	client *openrouter.Client
}

// New builds a binding from one provider configuration block.
func New(name string, cfg config.Provider, opts ...openrouter.Option) *Binding {
	if strings.TrimSpace(name) == "" {
		name = "audio"
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

// Analyze runs one engine recording through the model and validates the
// structured result.
func (b *Binding) Analyze(ctx context.Context, req providers.Request) (*providers.Result, error) {
	if req.Kind != report.KindAudio {
		return nil, services.Wrap(services.ErrValidation, "audio", "analyze",
			"binding only handles engine-sound analysis", nil)
	}
	if len(req.Data) == 0 {
		return nil, services.Wrap(services.ErrAssetMissing, "audio", "analyze", "no audio payload", nil)
	}

	parts := []openrouter.ContentPart{
		openrouter.TextPart("Diagnose the attached engine recording. Respond with the JSON schema only."),
		openrouter.AudioPart(base64.StdEncoding.EncodeToString(req.Data), audioFormat(req.MIME, req.Data)),
	}
	content, err := b.client.CompleteJSON(ctx, enginePrompt, parts)
	if err != nil {
		return nil, err
	}

	var parsed providers.AudioResult
	if err := openrouter.DecodeJSON(content, &parsed); err != nil {
		return nil, services.Wrap(services.ErrIncompleteResponse, "audio", "decode", "engine payload", err)
	}
	for i := range parsed.Issues {
		parsed.Issues[i].Severity = providers.ParseSeverity(string(parsed.Issues[i].Severity))
		parsed.Issues[i].Title = strings.TrimSpace(parsed.Issues[i].Title)
	}

	result := &providers.Result{
		Kind:     report.KindAudio,
		Provider: b.name,
		Model:    b.client.Model(),
		AssetRef: req.AssetRef,
		Audio:    &parsed,
		Raw:      content,
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// audioFormat picks the wire format label from the MIME type or magic bytes.
func audioFormat(mime string, data []byte) string {
	switch {
	case strings.Contains(mime, "wav"):
		return "wav"
	case strings.Contains(mime, "mpeg"), strings.Contains(mime, "mp3"):
		return "mp3"
	case strings.Contains(mime, "ogg"):
		return "ogg"
	case strings.Contains(mime, "flac"):
		return "flac"
	case strings.Contains(mime, "mp4"), strings.Contains(mime, "m4a"):
		return "m4a"
	}
	if len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return "wav"
	}
	if len(data) >= 4 && string(data[:4]) == "OggS" {
		return "ogg"
	}
	if len(data) >= 4 && string(data[:4]) == "fLaC" {
		return "flac"
	}
	return "mp3"
}
