package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithCampaignID_And_CampaignIDFromContext(t *testing.T) {
	ctx := context.Background()
	campaignID := "c0ffee00-0000-4000-8000-000000000001"

	// Initially empty
	if got := CampaignIDFromContext(ctx); got != "" {
		t.Errorf("CampaignIDFromContext() on empty ctx = %v, want empty", got)
	}

	ctx = WithCampaignID(ctx, campaignID)
	if got := CampaignIDFromContext(ctx); got != campaignID {
		t.Errorf("CampaignIDFromContext() = %v, want %v", got, campaignID)
	}
}

func TestFromContext_AttachesCampaignID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	FromContext(context.Background(), base).Info("no id")
	FromContext(WithCampaignID(context.Background(), "run-1"), base).Info("with id")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if _, ok := entries[0].ContextMap()["campaign_id"]; ok {
		t.Error("campaign_id should not be attached without an ID in context")
	}
	if got := entries[1].ContextMap()["campaign_id"]; got != "run-1" {
		t.Errorf("campaign_id = %v, want run-1", got)
	}
}

func TestNew_ReturnsLogger(t *testing.T) {
	for _, jsonOutput := range []bool{true, false} {
		l, err := New(jsonOutput)
		if err != nil {
			t.Fatalf("New(%v) failed: %v", jsonOutput, err)
		}
		if l == nil {
			t.Errorf("New(%v) returned nil", jsonOutput)
		}
	}
}
