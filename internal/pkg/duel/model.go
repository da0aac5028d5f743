package duel

import (
	"github.com/vreid/duel/internal/pkg/oracle"
	"github.com/vreid/duel/internal/pkg/queue"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusSettled  Status = "settled"
	StatusRefunded Status = "refunded"
)

type Round struct {
	ID oracle.CorrelationID `json:"id"`

	Entrants [2]queue.Entrant `json:"entrants"`
	Pot      uint64           `json:"pot"`
	Status   Status           `json:"status"`

	RequestedAt int64 `json:"requested_at"`

	Winner      string   `json:"winner,omitempty"`
	Rake        uint64   `json:"rake"`
	Payout      uint64   `json:"payout"`
	RandomWords []uint64 `json:"random_words,omitempty"`
	Marker      uint64   `json:"marker,omitempty"`
	ClosedAt    int64    `json:"closed_at,omitempty"`
}

type Receipt struct {
	Account  string `json:"account"`
	Position int    `json:"position"`
	Marker   uint64 `json:"marker"`

	RoundID oracle.CorrelationID `json:"round_id,omitempty"`
}

type EventKind string

const (
	EventEntered       EventKind = "entered"
	EventRoundOpened   EventKind = "round_opened"
	EventRoundSettled  EventKind = "round_settled"
	EventRoundRefunded EventKind = "round_refunded"
)

type Entered struct {
	Position int    `json:"position"`
	Account  string `json:"account"`
}

// Event is pushed on the engine's sink after every state change. Entered is
// set for EventEntered; Round for the round events.
type Event struct {
	Kind      EventKind `json:"kind"`
	Marker    uint64    `json:"marker"`
	Timestamp int64     `json:"timestamp"`

	Entered *Entered `json:"entered,omitempty"`
	Round   *Round   `json:"round,omitempty"`
}

type Stats struct {
	Marker   uint64 `json:"marker"`
	Queued   int    `json:"queued"`
	Enqueued uint64 `json:"enqueued"`
	Paired   uint64 `json:"paired"`
	Pending  int    `json:"pending"`
	Settled  int    `json:"settled"`
	Refunded int    `json:"refunded"`
	Escrow   uint64 `json:"escrow"`
}
