package tenants

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

type countingReader struct {
	calls int
}

func (c *countingReader) GetSettings(_ context.Context, tenantID uuid.UUID) (Settings, error) {
	c.calls++
	return Settings{TenantID: tenantID, GatewayToken: "tok"}, nil
}

func TestCachedSettings_ServesFromCacheWithinTTL(t *testing.T) {
	reader := &countingReader{}
	cache := NewCachedSettings(reader, time.Minute)
	tenantID := uuid.New()

	for i := 0; i < 3; i++ {
		settings, err := cache.GetSettings(context.Background(), tenantID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if settings.GatewayToken != "tok" {
			t.Fatalf("expected gateway token, got %q", settings.GatewayToken)
		}
	}
	if reader.calls != 1 {
		t.Fatalf("expected 1 fetch, got %d", reader.calls)
	}
}

func TestCachedSettings_InvalidateForcesRefetch(t *testing.T) {
	reader := &countingReader{}
	cache := NewCachedSettings(reader, time.Minute)
	tenantID := uuid.New()

	if _, err := cache.GetSettings(context.Background(), tenantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cache.Invalidate(tenantID)
	if _, err := cache.GetSettings(context.Background(), tenantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reader.calls != 2 {
		t.Fatalf("expected 2 fetches, got %d", reader.calls)
	}
}

func TestCachedSettings_ExpiredEntryRefetches(t *testing.T) {
	reader := &countingReader{}
	cache := NewCachedSettings(reader, -time.Second)
	tenantID := uuid.New()

	cache.GetSettings(context.Background(), tenantID)
	cache.GetSettings(context.Background(), tenantID)
	if reader.calls != 2 {
		t.Fatalf("expected 2 fetches, got %d", reader.calls)
	}
}
