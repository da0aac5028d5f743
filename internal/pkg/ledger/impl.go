package ledger

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"sync"

	"github.com/cockroachdb/apd"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrOverflow          = errors.New("balance overflow")
)

// Credit is one leg of a Disburse.
type Credit struct {
	To     string
	Amount uint64
}

// Ledger tracks balances of a single fungible asset. Unseen accounts hold
// zero, and no operation ever leaves a balance negative.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]uint64
	decimals int32
}

func New(decimals int32) *Ledger {
	return &Ledger{
		balances: map[string]uint64{},
		decimals: decimals,
	}
}

func (l *Ledger) BalanceOf(account string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.balances[account]
}

// Mint credits newly issued units, the way the mock stablecoin funds its
// deployer.
func (l *Ledger) Mint(to string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[to] > math.MaxUint64-amount {
		return fmt.Errorf("%w: minting %d to %s", ErrOverflow, amount, to)
	}

	l.balances[to] += amount

	return nil
}

func (l *Ledger) Transfer(from, to string, amount uint64) error {
	return l.Disburse(from, Credit{To: to, Amount: amount})
}

// Disburse debits the sum of all credits from one account and applies every
// credit, or changes nothing.
func (l *Ledger) Disburse(from string, credits ...Credit) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total uint64

	for _, credit := range credits {
		if len(credit.To) == 0 {
			return fmt.Errorf("%w: empty recipient", ErrInvalidAmount)
		}

		if total > math.MaxUint64-credit.Amount {
			return fmt.Errorf("%w: disbursement total", ErrOverflow)
		}

		total += credit.Amount
	}

	balance := l.balances[from]
	if balance < total {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, from, balance, total)
	}

	next := map[string]uint64{from: balance - total}

	for _, credit := range credits {
		current, ok := next[credit.To]
		if !ok {
			current = l.balances[credit.To]
		}

		if current > math.MaxUint64-credit.Amount {
			return fmt.Errorf("%w: crediting %s", ErrOverflow, credit.To)
		}

		next[credit.To] = current + credit.Amount
	}

	for account, value := range next {
		l.balances[account] = value
	}

	return nil
}

type Balance struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
	Display string `json:"display"`
}

// Snapshot lists every account that has ever been credited, sorted by name.
func (l *Ledger) Snapshot() []Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Balance, 0, len(l.balances))
	for account, amount := range l.balances {
		result = append(result, Balance{
			Account: account,
			Amount:  amount,
			Display: FormatAmount(amount, l.decimals),
		})
	}

	sort.Slice(result, func(a, b int) bool {
		return result[a].Account < result[b].Account
	})

	return result
}

func (l *Ledger) Decimals() int32 {
	return l.decimals
}

// FormatAmount renders smallest-unit amounts as a fixed-point token string,
// e.g. 5000000 with 6 decimals is "5.000000".
func FormatAmount(amount uint64, decimals int32) string {
	d := apd.NewWithBigInt(new(big.Int).SetUint64(amount), -decimals)

	return d.Text('f')
}
