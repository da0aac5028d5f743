package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/samber/do/v2"
	"github.com/vreid/duel/internal/pkg/oracle"
)

const MaxRake = 10000

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrRakeOutOfRange = errors.New("rake out of range")
	ErrInvalidFee     = errors.New("entrance fee must be positive")
	ErrMissingAccount = errors.New("missing account")
)

type Settings struct {
	EntranceFee uint64            `json:"entrance_fee"`
	Rake        uint32            `json:"rake"`
	Vault       string            `json:"vault"`
	Operator    string            `json:"operator"`
	Oracle      oracle.Parameters `json:"oracle"`
}

// Store holds the settings read on every settlement. The entrance fee is
// fixed at construction; rake and vault change only through the operator.
type Store struct {
	mu sync.RWMutex

	settings Settings
}

func New(settings Settings) (*Store, error) {
	if settings.EntranceFee == 0 {
		return nil, ErrInvalidFee
	}

	if settings.Rake > MaxRake {
		return nil, fmt.Errorf("%w: %d", ErrRakeOutOfRange, settings.Rake)
	}

	if len(settings.Vault) == 0 || len(settings.Operator) == 0 {
		return nil, fmt.Errorf("%w: vault and operator are required", ErrMissingAccount)
	}

	if settings.Oracle.NumWords == 0 {
		settings.Oracle.NumWords = 1
	}

	return &Store{settings: settings}, nil
}

func NewConfigService(i do.Injector) (*Store, error) {
	//nolint:gosec
	return New(Settings{
		EntranceFee: do.MustInvokeNamed[uint64](i, "entrance-fee"),
		Rake:        do.MustInvokeNamed[uint32](i, "rake"),
		Vault:       do.MustInvokeNamed[string](i, "vault"),
		Operator:    do.MustInvokeNamed[string](i, "operator"),
		Oracle: oracle.Parameters{
			KeyHash:              do.MustInvokeNamed[string](i, "key-hash"),
			SubscriptionID:       do.MustInvokeNamed[uint64](i, "subscription-id"),
			Coordinator:          do.MustInvokeNamed[string](i, "coordinator"),
			CallbackGasLimit:     uint32(do.MustInvokeNamed[uint64](i, "callback-gas-limit")),
			RequestConfirmations: uint16(do.MustInvokeNamed[uint64](i, "request-confirmations")),
			NumWords:             uint32(do.MustInvokeNamed[uint64](i, "num-words")),
		},
	})
}

func (s *Store) authorize(caller string) error {
	if caller != s.settings.Operator {
		return fmt.Errorf("%w: %s is not the operator", ErrUnauthorized, caller)
	}

	return nil
}

func (s *Store) SetRake(caller string, rake uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.authorize(caller)
	if err != nil {
		return err
	}

	if rake > MaxRake {
		return fmt.Errorf("%w: %d", ErrRakeOutOfRange, rake)
	}

	s.settings.Rake = rake

	return nil
}

func (s *Store) SetVault(caller, vault string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.authorize(caller)
	if err != nil {
		return err
	}

	if len(vault) == 0 {
		return fmt.Errorf("%w: vault", ErrMissingAccount)
	}

	s.settings.Vault = vault

	return nil
}

func (s *Store) EntranceFee() uint64 {
	// immutable after New
	return s.settings.EntranceFee
}

func (s *Store) Rake() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.settings.Rake
}

func (s *Store) Vault() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.settings.Vault
}

func (s *Store) Operator() string {
	return s.settings.Operator
}

func (s *Store) OracleParameters() oracle.Parameters {
	return s.settings.Oracle
}

func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.settings
}

// RakeOf returns floor(pot * rake / 10000) without intermediate overflow.
func RakeOf(pot uint64, rake uint32) uint64 {
	return pot/MaxRake*uint64(rake) + pot%MaxRake*uint64(rake)/MaxRake
}
