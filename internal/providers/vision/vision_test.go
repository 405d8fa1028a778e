package vision_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mivvo/internal/config"
	"mivvo/internal/providers"
	"mivvo/internal/providers/openrouter"
	"mivvo/internal/providers/vision"
	"mivvo/internal/report"
	"mivvo/internal/services"
)

func completionBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	if err != nil {
		t.Fatalf("marshal completion: %v", err)
	}
	return body
}

func bindingConfig(url string) config.Provider {
	return config.Provider{
		Name:              "test-vision",
		APIKey:            "test-key",
		BaseURL:           url,
		Model:             "test-model",
		TimeoutSeconds:    5,
		MaxRetries:        2,
		RetryDelaySeconds: 1,
	}
}

func imageBytes() []byte {
	return []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02}
}

func TestAnalyzeDamageSuccess(t *testing.T) {
	payload := `{"overall_condition":"fair","issues":[{"title":"Dented door","severity":"high","area":"front left door"}],"repair_estimate":"moderate","confidence":0.85,"summary":"One significant dent."}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		w.Write(completionBody(t, payload))
	}))
	defer server.Close()

	binding := vision.New("test-vision", bindingConfig(server.URL))
	result, err := binding.Analyze(context.Background(), providers.Request{
		Kind: report.KindDamage,
		Data: imageBytes(),
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Damage == nil {
		t.Fatal("damage payload not populated")
	}
	if len(result.Damage.Issues) != 1 || result.Damage.Issues[0].Severity != providers.SeverityHigh {
		t.Fatalf("issues = %+v", result.Damage.Issues)
	}
	if result.Model != "test-model" {
		t.Fatalf("model = %s, want test-model", result.Model)
	}
}

func TestAnalyzeMissingRequiredFieldIsMalformed(t *testing.T) {
	// Parseable JSON with the overall_condition field absent.
	payload := `{"issues":[],"confidence":0.9}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionBody(t, payload))
	}))
	defer server.Close()

	binding := vision.New("test-vision", bindingConfig(server.URL))
	_, err := binding.Analyze(context.Background(), providers.Request{
		Kind: report.KindDamage,
		Data: imageBytes(),
	})
	if !errors.Is(err, services.ErrIncompleteResponse) {
		t.Fatalf("err = %v, want ErrIncompleteResponse", err)
	}
	if providers.ClassifyOutcome(err) != providers.OutcomeMalformedResponse {
		t.Fatalf("outcome = %s, want MALFORMED_RESPONSE", providers.ClassifyOutcome(err))
	}
}

func TestAnalyzeRetriesServerErrors(t *testing.T) {
	payload := `{"condition":"good","issues":[],"confidence":0.92,"summary":"Clean paint."}`
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
			return
		}
		w.Write(completionBody(t, payload))
	}))
	defer server.Close()

	var slept []time.Duration
	binding := vision.New("test-vision", bindingConfig(server.URL),
		openrouter.WithSleeper(func(d time.Duration) { slept = append(slept, d) }))

	result, err := binding.Analyze(context.Background(), providers.Request{
		Kind: report.KindPaint,
		Data: imageBytes(),
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Paint == nil || result.Paint.Condition != "good" {
		t.Fatalf("paint = %+v", result.Paint)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(slept) != 2 {
		t.Fatalf("sleeps = %d, want 2", len(slept))
	}
	for _, d := range slept {
		if d != time.Second {
			t.Fatalf("sleep = %s, want configured 1s fixed delay", d)
		}
	}
}

func TestAnalyzeQuotaExhaustsRetries(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "1")
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	binding := vision.New("test-vision", bindingConfig(server.URL),
		openrouter.WithSleeper(func(time.Duration) {}))

	_, err := binding.Analyze(context.Background(), providers.Request{
		Kind: report.KindValue,
		Data: imageBytes(),
	})
	if !errors.Is(err, services.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want bounded at 3", calls)
	}
}

func TestAnalyzeSingleRetryMeansTwoCalls(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := bindingConfig(server.URL)
	cfg.MaxRetries = 1
	binding := vision.New("test-vision", cfg,
		openrouter.WithSleeper(func(time.Duration) {}))

	_, err := binding.Analyze(context.Background(), providers.Request{
		Kind: report.KindValue,
		Data: imageBytes(),
	})
	if err == nil {
		t.Fatal("expected failure after retries")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want first attempt plus one retry", calls)
	}
}

func TestAnalyzeCodeFencedPayload(t *testing.T) {
	payload := "```json\n{\"estimated_value\":18500,\"currency\":\"USD\",\"issues\":[],\"confidence\":0.55,\"summary\":\"Mid-size sedan.\"}\n```"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionBody(t, payload))
	}))
	defer server.Close()

	binding := vision.New("test-vision", bindingConfig(server.URL))
	result, err := binding.Analyze(context.Background(), providers.Request{
		Kind: report.KindValue,
		Data: imageBytes(),
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Value == nil || result.Value.EstimatedValue != 18500 {
		t.Fatalf("value = %+v", result.Value)
	}
}

func TestAnalyzeRejectsAudioKind(t *testing.T) {
	binding := vision.New("test-vision", bindingConfig("http://127.0.0.1:0"))
	_, err := binding.Analyze(context.Background(), providers.Request{
		Kind: report.KindAudio,
		Data: imageBytes(),
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
