package queue

import (
	"errors"
	"fmt"
)

var ErrAlreadyQueued = errors.New("account already queued")

type Entrant struct {
	Account string `json:"account"`
	// Order is the global enqueue ordinal, starting at zero.
	Order uint64 `json:"order"`
	// Fee is the entrance fee escrowed when the entrant joined.
	Fee uint64 `json:"fee"`
}

// Queue is a FIFO of entrants waiting to be paired. It is not safe for
// concurrent use; callers serialize access.
type Queue struct {
	entrants []Entrant
	queued   map[string]struct{}

	enqueued uint64
	paired   uint64
}

func New() *Queue {
	return &Queue{
		queued: map[string]struct{}{},
	}
}

// Enqueue appends the account and returns its position in the queue.
func (q *Queue) Enqueue(account string, fee uint64) (Entrant, int, error) {
	if _, ok := q.queued[account]; ok {
		return Entrant{}, 0, fmt.Errorf("%w: %s", ErrAlreadyQueued, account)
	}

	entrant := Entrant{
		Account: account,
		Order:   q.enqueued,
		Fee:     fee,
	}

	q.entrants = append(q.entrants, entrant)
	q.queued[account] = struct{}{}
	q.enqueued++

	return entrant, len(q.entrants) - 1, nil
}

// TryDequeuePair removes the two entrants at the head, earliest first.
func (q *Queue) TryDequeuePair() ([2]Entrant, bool) {
	if len(q.entrants) < 2 {
		return [2]Entrant{}, false
	}

	pair := [2]Entrant{q.entrants[0], q.entrants[1]}

	q.entrants = q.entrants[2:]
	delete(q.queued, pair[0].Account)
	delete(q.queued, pair[1].Account)
	q.paired += 2

	return pair, true
}

// RequeuePair undoes TryDequeuePair, putting the pair back at the head in its
// original order.
func (q *Queue) RequeuePair(pair [2]Entrant) {
	entrants := make([]Entrant, 0, len(q.entrants)+2)
	entrants = append(entrants, pair[0], pair[1])
	entrants = append(entrants, q.entrants...)

	q.entrants = entrants
	q.queued[pair[0].Account] = struct{}{}
	q.queued[pair[1].Account] = struct{}{}
	q.paired -= 2
}

// PopTail withdraws the most recently enqueued entrant, aborting its entry.
func (q *Queue) PopTail() (Entrant, bool) {
	if len(q.entrants) == 0 {
		return Entrant{}, false
	}

	last := q.entrants[len(q.entrants)-1]
	if last.Order != q.enqueued-1 {
		return Entrant{}, false
	}

	q.entrants = q.entrants[:len(q.entrants)-1]
	delete(q.queued, last.Account)
	q.enqueued--

	return last, true
}

func (q *Queue) Len() int {
	return len(q.entrants)
}

func (q *Queue) Contains(account string) bool {
	_, ok := q.queued[account]

	return ok
}

func (q *Queue) Entrants() []Entrant {
	result := make([]Entrant, len(q.entrants))
	copy(result, q.entrants)

	return result
}

// Enqueued and Paired count entrants over the queue's lifetime, so
// Enqueued() - Paired() == Len() always holds.
func (q *Queue) Enqueued() uint64 {
	return q.enqueued
}

func (q *Queue) Paired() uint64 {
	return q.paired
}
