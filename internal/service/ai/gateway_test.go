package ai

import (
	"context"
	"errors"
	"testing"
)

func TestNewGatewayErrorKeepsExisting(t *testing.T) {
	inner := &GatewayError{Model: "a", Err: errors.New("boom")}

	if got := NewGatewayError("b", inner); got != error(inner) {
		t.Fatalf("expected existing GatewayError to be returned as is")
	}
	if NewGatewayError("b", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestRateLimitedDisabledReturnsNext(t *testing.T) {
	gw := &fakeGateway{}
	if got := NewRateLimited(gw, 0, 1); got != Gateway(gw) {
		t.Fatalf("expected unwrapped gateway when rate is zero")
	}
}

func TestRateLimitedSendCancelled(t *testing.T) {
	gw := &fakeGateway{reply: "ok"}
	limited := NewRateLimited(gw, 0.001, 1)

	if _, err := limited.Send(context.Background(), "m", Payload{}); err != nil {
		t.Fatalf("first send should use the burst token: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := limited.Send(ctx, "m", Payload{})

	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if gw.sends != 1 {
		t.Fatalf("expected one delegated send, got %d", gw.sends)
	}
}
