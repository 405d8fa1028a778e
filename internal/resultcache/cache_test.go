package resultcache_test

import (
	"context"
	"testing"

	"mivvo/internal/providers"
	"mivvo/internal/report"
	"mivvo/internal/resultcache"
	"mivvo/internal/testsupport"
)

func sampleResult() *providers.Result {
	return &providers.Result{
		Kind:     report.KindDamage,
		Provider: "vision",
		Model:    "test-model",
		Damage: &providers.DamageResult{
			OverallCondition: "good",
			Issues:           []providers.Issue{},
			Confidence:       0.9,
		},
	}
}

func TestGetMissThenHit(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithResultCache(true))
	cache, err := resultcache.Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	ctx := context.Background()
	key := resultcache.Key([]byte("asset-bytes"), report.KindDamage, "test-model")

	if got, err := cache.Get(ctx, key); err != nil || got != nil {
		t.Fatalf("cold Get = %v, %v; want nil miss", got, err)
	}

	if err := cache.Put(ctx, key, sampleResult()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Damage == nil || got.Damage.OverallCondition != "good" {
		t.Fatalf("hit = %+v, want stored damage result", got)
	}
}

func TestKeyDiscriminatesInputs(t *testing.T) {
	base := resultcache.Key([]byte("asset"), report.KindDamage, "model-a")
	if base == resultcache.Key([]byte("other"), report.KindDamage, "model-a") {
		t.Fatal("different bytes produced the same key")
	}
	if base == resultcache.Key([]byte("asset"), report.KindPaint, "model-a") {
		t.Fatal("different kinds produced the same key")
	}
	if base == resultcache.Key([]byte("asset"), report.KindDamage, "model-b") {
		t.Fatal("different models produced the same key")
	}
}

func TestDisabledCacheIsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithResultCache(false))
	cache, err := resultcache.Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	if cache.Enabled() {
		t.Fatal("cache should be disabled")
	}
	ctx := context.Background()
	key := resultcache.Key([]byte("asset"), report.KindDamage, "m")
	if err := cache.Put(ctx, key, sampleResult()); err != nil {
		t.Fatalf("Put on disabled cache: %v", err)
	}
	if got, err := cache.Get(ctx, key); err != nil || got != nil {
		t.Fatalf("Get on disabled cache = %v, %v; want nil, nil", got, err)
	}
}
