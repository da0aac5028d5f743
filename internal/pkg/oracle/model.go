package oracle

import (
	"context"
	"errors"
)

var (
	ErrBrokerUnavailable = errors.New("randomness broker unavailable")
	ErrUnknownRequest    = errors.New("unknown randomness request")
	ErrNoCallback        = errors.New("no fulfillment callback registered")
	ErrInvalidSignature  = errors.New("invalid fulfillment signature")
)

type CorrelationID string

// Parameters identify the key, subscription and callback budget used for
// every request.
type Parameters struct {
	KeyHash              string `json:"key_hash"`
	SubscriptionID       uint64 `json:"subscription_id"`
	Coordinator          string `json:"coordinator"`
	CallbackGasLimit     uint32 `json:"callback_gas_limit"`
	RequestConfirmations uint16 `json:"request_confirmations"`
	NumWords             uint32 `json:"num_words"`
}

type Request struct {
	Parameters

	Consumer string `json:"consumer"`
}

type Fulfillment struct {
	RequestID   CorrelationID `json:"request_id"`
	RandomWords []uint64      `json:"random_words"`
}

type FulfillFunc func(ctx context.Context, id CorrelationID, words []uint64) error

// Broker issues randomness requests without waiting for them and delivers
// each fulfillment exactly once through the registered callback.
type Broker interface {
	RequestRandomness(ctx context.Context, request Request) (CorrelationID, error)
	OnFulfilled(callback FulfillFunc)
}
