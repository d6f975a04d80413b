package ai

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/zhouzirui/crisis-desk/backend/internal/model/chat"
)

var (
	// ErrListingUnsupported is returned by providers without a model listing API.
	ErrListingUnsupported = errors.New("model listing not supported by provider")
	// ErrAudioUnsupported is returned when a clip reaches a provider that cannot
	// take audio and no transcript was made for it.
	ErrAudioUnsupported = errors.New("voice messages need a transcription service: set TRANSCRIBE_API_KEY or OPENAI_API_KEY")
)

// Gateway is the boundary to the remote generation service.
type Gateway interface {
	ListModels(ctx context.Context) ([]chat.ModelInfo, error)
	Send(ctx context.Context, modelID string, payload Payload) (string, error)
}

// Transcriber turns a clip into text. The session service calls it once per
// voice turn and keeps the result on the turn.
type Transcriber interface {
	Transcribe(ctx context.Context, audio *chat.Audio) (string, error)
}

// GatewayError wraps a failed Send. Error returns the provider message as is so
// it can be shown to the user verbatim.
type GatewayError struct {
	Model string
	Err   error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return "model request failed"
	}
	return e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError wraps err unless it already is a GatewayError.
func NewGatewayError(modelID string, err error) error {
	if err == nil {
		return nil
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return err
	}
	return &GatewayError{Model: modelID, Err: err}
}

// RateLimited throttles Send calls of the wrapped gateway. Listing is not
// throttled.
type RateLimited struct {
	next    Gateway
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a token bucket of perSecond requests and the
// given burst. A non-positive rate returns next unchanged.
func NewRateLimited(next Gateway, perSecond float64, burst int) Gateway {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// ListModels delegates to the wrapped gateway.
func (r *RateLimited) ListModels(ctx context.Context) ([]chat.ModelInfo, error) {
	return r.next.ListModels(ctx)
}

// Send waits for a token and then delegates.
func (r *RateLimited) Send(ctx context.Context, modelID string, payload Payload) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", &GatewayError{Model: modelID, Err: fmt.Errorf("rate limit wait: %w", err)}
	}
	return r.next.Send(ctx, modelID, payload)
}
