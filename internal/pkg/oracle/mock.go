package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// MockCoordinator is an in-process coordinator for local runs and tests.
// Request ids are sequential decimal strings starting at "1".
type MockCoordinator struct {
	mu sync.Mutex

	nextID      uint64
	pending     map[CorrelationID]Request
	callback    FulfillFunc
	unavailable bool
}

func NewMockCoordinator() *MockCoordinator {
	return &MockCoordinator{
		pending: map[CorrelationID]Request{},
	}
}

func (m *MockCoordinator) OnFulfilled(callback FulfillFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callback = callback
}

// SetAvailable toggles whether new requests can be dispatched.
func (m *MockCoordinator) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unavailable = !available
}

func (m *MockCoordinator) RequestRandomness(_ context.Context, request Request) (CorrelationID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return "", fmt.Errorf("%w: coordinator offline", ErrBrokerUnavailable)
	}

	if request.NumWords == 0 {
		request.NumWords = 1
	}

	m.nextID++
	id := CorrelationID(strconv.FormatUint(m.nextID, 10))
	m.pending[id] = request

	return id, nil
}

func (m *MockCoordinator) Pending() []CorrelationID {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]CorrelationID, 0, len(m.pending))
	for id := range m.pending {
		result = append(result, id)
	}

	sort.Slice(result, func(a, b int) bool {
		x, _ := strconv.ParseUint(string(result[a]), 10, 64)
		y, _ := strconv.ParseUint(string(result[b]), 10, 64)

		return x < y
	})

	return result
}

// Fulfill delivers words derived deterministically from the request id.
func (m *MockCoordinator) Fulfill(ctx context.Context, id CorrelationID) error {
	m.mu.Lock()
	request, ok := m.pending[id]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}

	return m.FulfillWithWords(ctx, id, DeriveWords(id, request.NumWords))
}

func (m *MockCoordinator) FulfillWithWords(ctx context.Context, id CorrelationID, words []uint64) error {
	m.mu.Lock()

	_, ok := m.pending[id]
	if !ok {
		m.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}

	callback := m.callback
	if callback == nil {
		m.mu.Unlock()

		return ErrNoCallback
	}

	delete(m.pending, id)
	m.mu.Unlock()

	err := callback(ctx, id, words)
	if err != nil {
		return fmt.Errorf("fulfillment of %s rejected: %w", id, err)
	}

	return nil
}

func DeriveWords(id CorrelationID, n uint32) []uint64 {
	words := make([]uint64, 0, n)

	for idx := range n {
		h := sha256.New()
		h.Write([]byte(id))
		_ = binary.Write(h, binary.BigEndian, idx)

		words = append(words, binary.BigEndian.Uint64(h.Sum(nil)[:8]))
	}

	return words
}
