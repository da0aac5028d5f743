package oracle

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const SignatureHeader = "X-Oracle-Signature"

type remoteRequest struct {
	Request

	RequestID   CorrelationID `json:"request_id"`
	CallbackURL string        `json:"callback_url,omitempty"`
}

// RemoteCoordinator dispatches requests to an external oracle over HTTP. The
// oracle answers later by calling back into Deliver.
type RemoteCoordinator struct {
	client *resty.Client

	callbackURL string
	secret      []byte

	mu       sync.RWMutex
	callback FulfillFunc
}

func NewRemoteCoordinator(baseURL, callbackURL, secret string, timeout time.Duration) *RemoteCoordinator {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &RemoteCoordinator{
		client:      client,
		callbackURL: callbackURL,
		secret:      []byte(secret),
	}
}

func (r *RemoteCoordinator) OnFulfilled(callback FulfillFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callback = callback
}

func (r *RemoteCoordinator) RequestRandomness(ctx context.Context, request Request) (CorrelationID, error) {
	_id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate request id: %w", err)
	}

	id := CorrelationID(_id.String())

	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(remoteRequest{
			Request:     request,
			RequestID:   id,
			CallbackURL: r.callbackURL,
		}).
		Post("/requests")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("%w: oracle answered %s", ErrBrokerUnavailable, resp.Status())
	}

	return id, nil
}

// Deliver checks the signature of an inbound fulfillment and passes it to
// the callback. Replays are left to the callback to reject.
func (r *RemoteCoordinator) Deliver(ctx context.Context, body []byte, signature string, fulfillment Fulfillment) error {
	if len(r.secret) > 0 && !hmac.Equal([]byte(Sign(r.secret, body)), []byte(signature)) {
		return ErrInvalidSignature
	}

	r.mu.RLock()
	callback := r.callback
	r.mu.RUnlock()

	if callback == nil {
		return ErrNoCallback
	}

	//nolint:wrapcheck
	return callback(ctx, fulfillment.RequestID, fulfillment.RandomWords)
}

func Sign(secret, body []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write(body)

	return hex.EncodeToString(h.Sum(nil))
}
