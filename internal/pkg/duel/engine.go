package duel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vreid/duel/internal/pkg/config"
	"github.com/vreid/duel/internal/pkg/ledger"
	"github.com/vreid/duel/internal/pkg/oracle"
	"github.com/vreid/duel/internal/pkg/queue"
)

var (
	ErrIntegrityViolation = errors.New("integrity violation")
	ErrNoRandomWords      = errors.New("fulfillment carried no random words")
	ErrInvalidEntrant     = errors.New("account may not enter")
	ErrRoundNotFound      = errors.New("round not found")
)

type Options struct {
	Ledger *ledger.Ledger
	Config *config.Store
	Broker oracle.Broker

	// Account holds escrowed fees between entry and settlement.
	Account string

	Sink   chan<- Event
	Logger zerolog.Logger
	Now    func() time.Time
}

// Engine pairs entrants, requests randomness for each pair and settles the
// pot when the randomness arrives. Every mutation runs under one lock.
type Engine struct {
	mu sync.Mutex

	ledger *ledger.Ledger
	config *config.Store
	broker oracle.Broker
	queue  *queue.Queue

	account string
	rounds  map[oracle.CorrelationID]*Round
	marker  uint64

	sink   chan<- Event
	logger zerolog.Logger
	now    func() time.Time
}

func NewEngine(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		ledger:  opts.Ledger,
		config:  opts.Config,
		broker:  opts.Broker,
		queue:   queue.New(),
		account: opts.Account,
		rounds:  map[oracle.CorrelationID]*Round{},
		sink:    opts.Sink,
		logger:  opts.Logger,
		now:     now,
	}

	e.broker.OnFulfilled(e.OnRandomnessFulfilled)

	return e
}

func (e *Engine) Account() string {
	return e.account
}

// Enter escrows the entrance fee and queues the account. When this entry
// completes a pair, randomness is requested before Enter returns. A failed
// request aborts the whole entry: the fee is refunded and the earlier
// entrant stays at the head of the queue.
func (e *Engine) Enter(ctx context.Context, account string) (Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(account) == 0 || account == e.account {
		return Receipt{}, fmt.Errorf("%w: %q", ErrInvalidEntrant, account)
	}

	if e.queue.Contains(account) {
		return Receipt{}, fmt.Errorf("failed to enter: %w: %s", queue.ErrAlreadyQueued, account)
	}

	fee := e.config.EntranceFee()

	err := e.ledger.Transfer(account, e.account, fee)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to escrow entrance fee: %w", err)
	}

	_, position, err := e.queue.Enqueue(account, fee)
	if err != nil {
		e.refund(account, fee)

		return Receipt{}, fmt.Errorf("failed to enter: %w", err)
	}

	receipt := Receipt{
		Account:  account,
		Position: position,
	}

	pair, paired := e.queue.TryDequeuePair()
	if !paired {
		receipt.Marker = e.advance()
		e.emitEntered(receipt)

		return receipt, nil
	}

	round, err := e.settlePairing(ctx, pair)
	if err != nil {
		e.queue.RequeuePair(pair)
		_, _ = e.queue.PopTail()
		e.refund(account, fee)

		e.logger.Warn().Err(err).Str("account", account).Msg("entry aborted, randomness request failed")

		return Receipt{}, err
	}

	receipt.Marker = e.advance()
	receipt.RoundID = round.ID

	e.emitEntered(receipt)
	e.emit(EventRoundOpened, receipt.Marker, round)

	return receipt, nil
}

func (e *Engine) settlePairing(ctx context.Context, pair [2]queue.Entrant) (*Round, error) {
	// The fee is immutable, so the pot frozen here equals what both entrants
	// escrowed.
	pot := 2 * e.config.EntranceFee()

	id, err := e.broker.RequestRandomness(ctx, oracle.Request{
		Parameters: e.config.OracleParameters(),
		Consumer:   e.account,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request randomness: %w", err)
	}

	if _, exists := e.rounds[id]; exists {
		e.logger.Error().Str("request_id", string(id)).Msg("broker reused a correlation id")

		return nil, fmt.Errorf("%w: correlation id %s reused", ErrIntegrityViolation, id)
	}

	round := &Round{
		ID:          id,
		Entrants:    pair,
		Pot:         pot,
		Status:      StatusPending,
		RequestedAt: e.now().Unix(),
	}

	e.rounds[id] = round

	e.logger.Debug().
		Str("request_id", string(id)).
		Str("first", pair[0].Account).
		Str("second", pair[1].Account).
		Uint64("pot", pot).
		Msg("round opened")

	return round, nil
}

// OnRandomnessFulfilled settles the pending round for id. Unknown ids and
// rounds that are no longer pending are integrity violations and leave all
// state untouched.
func (e *Engine) OnRandomnessFulfilled(_ context.Context, id oracle.CorrelationID, words []uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	round, ok := e.rounds[id]
	if !ok {
		e.logger.Error().Str("request_id", string(id)).Msg("fulfillment for unknown round")

		return fmt.Errorf("%w: unknown correlation id %s", ErrIntegrityViolation, id)
	}

	if round.Status != StatusPending {
		e.logger.Error().Str("request_id", string(id)).Str("status", string(round.Status)).Msg("repeated fulfillment")

		return fmt.Errorf("%w: round %s already %s", ErrIntegrityViolation, id, round.Status)
	}

	if len(words) == 0 {
		e.logger.Error().Str("request_id", string(id)).Msg("empty fulfillment")

		return fmt.Errorf("%w: %w", ErrIntegrityViolation, ErrNoRandomWords)
	}

	winner := round.Entrants[words[0]%2].Account
	rake := config.RakeOf(round.Pot, e.config.Rake())
	payout := round.Pot - rake

	credits := []ledger.Credit{{To: winner, Amount: payout}}
	if rake > 0 {
		credits = append(credits, ledger.Credit{To: e.config.Vault(), Amount: rake})
	}

	err := e.ledger.Disburse(e.account, credits...)
	if err != nil {
		e.logger.Error().Err(err).Str("request_id", string(id)).Msg("escrow cannot cover pot")

		return fmt.Errorf("%w: %w", ErrIntegrityViolation, err)
	}

	round.Status = StatusSettled
	round.Winner = winner
	round.Rake = rake
	round.Payout = payout
	round.RandomWords = append([]uint64(nil), words...)
	round.Marker = e.advance()
	round.ClosedAt = e.now().Unix()

	e.logger.Info().
		Str("request_id", string(id)).
		Str("winner", winner).
		Uint64("pot", round.Pot).
		Uint64("rake", rake).
		Uint64("marker", round.Marker).
		Msg("round settled")

	e.emit(EventRoundSettled, round.Marker, round)

	return nil
}

// ExpirePending refunds both entrants of every round that has waited longer
// than timeout for randomness. A refunded round is terminal.
func (e *Engine) ExpirePending(timeout time.Duration) []Round {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	expired := []Round{}

	for _, round := range e.sortedRounds() {
		if round.Status != StatusPending {
			continue
		}

		if now.Sub(time.Unix(round.RequestedAt, 0)) < timeout {
			continue
		}

		err := e.ledger.Disburse(e.account,
			ledger.Credit{To: round.Entrants[0].Account, Amount: round.Entrants[0].Fee},
			ledger.Credit{To: round.Entrants[1].Account, Amount: round.Entrants[1].Fee},
		)
		if err != nil {
			e.logger.Error().Err(err).Str("request_id", string(round.ID)).Msg("failed to refund round")

			continue
		}

		round.Status = StatusRefunded
		round.Marker = e.advance()
		round.ClosedAt = now.Unix()

		e.logger.Warn().Str("request_id", string(round.ID)).Msg("round refunded after fulfillment timeout")
		e.emit(EventRoundRefunded, round.Marker, round)

		expired = append(expired, copyRound(round))
	}

	return expired
}

// SetRake runs the operator change inside the engine's lock so it is
// ordered against settlements.
func (e *Engine) SetRake(caller string, rake uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	//nolint:wrapcheck
	return e.config.SetRake(caller, rake)
}

func (e *Engine) SetVault(caller, vault string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	//nolint:wrapcheck
	return e.config.SetVault(caller, vault)
}

func (e *Engine) Round(id oracle.CorrelationID) (Round, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	round, ok := e.rounds[id]
	if !ok {
		return Round{}, fmt.Errorf("%w: %s", ErrRoundNotFound, id)
	}

	return copyRound(round), nil
}

func (e *Engine) Rounds(status Status) []Round {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := []Round{}

	for _, round := range e.sortedRounds() {
		if len(status) == 0 || round.Status == status {
			result = append(result, copyRound(round))
		}
	}

	return result
}

func (e *Engine) Queue() []queue.Entrant {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.queue.Entrants()
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Stats{
		Marker:   e.marker,
		Queued:   e.queue.Len(),
		Enqueued: e.queue.Enqueued(),
		Paired:   e.queue.Paired(),
		Escrow:   e.ledger.BalanceOf(e.account),
	}

	for _, round := range e.rounds {
		switch round.Status {
		case StatusPending:
			stats.Pending++
		case StatusSettled:
			stats.Settled++
		case StatusRefunded:
			stats.Refunded++
		}
	}

	return stats
}

func (e *Engine) advance() uint64 {
	e.marker++

	return e.marker
}

func (e *Engine) refund(account string, fee uint64) {
	err := e.ledger.Transfer(e.account, account, fee)
	if err != nil {
		e.logger.Error().Err(err).Str("account", account).Msg("failed to refund entrance fee")
	}
}

func (e *Engine) emitEntered(receipt Receipt) {
	e.send(Event{
		Kind:      EventEntered,
		Marker:    receipt.Marker,
		Timestamp: e.now().Unix(),
		Entered: &Entered{
			Position: receipt.Position,
			Account:  receipt.Account,
		},
	})
}

func (e *Engine) emit(kind EventKind, marker uint64, round *Round) {
	r := copyRound(round)

	e.send(Event{
		Kind:      kind,
		Marker:    marker,
		Timestamp: e.now().Unix(),
		Round:     &r,
	})
}

// send never blocks; the engine does not depend on anyone listening.
func (e *Engine) send(event Event) {
	if e.sink == nil {
		return
	}

	select {
	case e.sink <- event:
	default:
		e.logger.Warn().Str("kind", string(event.Kind)).Uint64("marker", event.Marker).Msg("event sink full, dropping event")
	}
}

func (e *Engine) sortedRounds() []*Round {
	result := make([]*Round, 0, len(e.rounds))
	for _, round := range e.rounds {
		result = append(result, round)
	}

	sort.Slice(result, func(a, b int) bool {
		x, y := result[a], result[b]
		if x.Entrants[0].Order != y.Entrants[0].Order {
			return x.Entrants[0].Order < y.Entrants[0].Order
		}

		return x.ID < y.ID
	})

	return result
}

func copyRound(round *Round) Round {
	r := *round
	r.RandomWords = append([]uint64(nil), round.RandomWords...)

	return r
}
