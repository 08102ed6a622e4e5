package ratelimit

import (
	"errors"
	"testing"
	"time"
)

// --- Unit Tests ---

func TestParseRateLimit(t *testing.T) {
	tests := []struct {
		input   string
		want    RateLimit
		wantErr error
	}{
		{"20/1m", PerMinute(20), nil},
		{" 1 / 1s ", PerSecond(1), nil},
		{"50/90s", RateLimit{Value: 50, Per: 90 * time.Second}, nil},
		{"20", RateLimit{}, ErrInvalidConfig},
		{"x/1m", RateLimit{}, ErrInvalidValue},
		{"0/1m", RateLimit{}, ErrInvalidValue},
		{"5/soon", RateLimit{}, ErrInvalidPeriod},
		{"5/-1s", RateLimit{}, ErrInvalidPeriod},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRateLimit(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseRateLimit(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestRateLimit_TextRoundTrip(t *testing.T) {
	text, err := PerMinute(20).MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var back RateLimit
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText(%q): %v", text, err)
	}
	if back != PerMinute(20) {
		t.Errorf("round trip = %v", back)
	}
}

func TestParseTier(t *testing.T) {
	got, err := ParseTier("tier3")
	if err != nil || got != Tier3 {
		t.Errorf("ParseTier(tier3) = %v, %v", got, err)
	}
	if _, err := ParseTier("tier9"); !errors.Is(err, ErrUnknownTier) {
		t.Errorf("err = %v, want ErrUnknownTier", err)
	}
}
