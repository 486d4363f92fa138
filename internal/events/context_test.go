package events

import (
	"context"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req_abc123")
	got := RequestIDFromContext(ctx)
	if got != "req_abc123" {
		t.Errorf("got %q, want %q", got, "req_abc123")
	}
}

func TestRequestIDFromEmptyContext(t *testing.T) {
	got := RequestIDFromContext(context.Background())
	if got != "" {
		t.Errorf("got %q, want empty string", got)
	}
}
