// Package logger provides structured logging setup using zap.
package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// campaignIDKey is the context key for the campaign (run) identifier.
type campaignIDKey struct{}

// New creates a logger. JSON output uses the zap production encoder; otherwise a
// console encoder with colored levels is used for operators watching a terminal.
func New(jsonOutput bool) (*zap.Logger, error) {
	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg.Build()
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// WithCampaignID returns a new context carrying the campaign ID.
func WithCampaignID(ctx context.Context, campaignID string) context.Context {
	return context.WithValue(ctx, campaignIDKey{}, campaignID)
}

// CampaignIDFromContext extracts the campaign ID from the context.
func CampaignIDFromContext(ctx context.Context) string {
	if v := ctx.Value(campaignIDKey{}); v != nil {
		return v.(string)
	}
	return ""
}

// FromContext returns a logger with context fields (campaign ID) attached.
func FromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if id := CampaignIDFromContext(ctx); id != "" {
		return base.With(zap.String("campaign_id", id))
	}
	return base
}
