package ledger

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/duel/internal/pkg/common"
)

type LedgerService struct {
	Ledger *Ledger
}

type TransferRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

func NewLedgerService(i do.Injector) (*LedgerService, error) {
	decimals := do.MustInvokeNamed[int](i, "token-decimals")
	operator := do.MustInvokeNamed[string](i, "operator")
	initialSupply := do.MustInvokeNamed[uint64](i, "initial-supply")

	//nolint:gosec
	result := &LedgerService{
		Ledger: New(int32(decimals)),
	}

	if initialSupply > 0 {
		err := result.Ledger.Mint(operator, initialSupply)
		if err != nil {
			return nil, fmt.Errorf("failed to mint initial supply: %w", err)
		}
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(result.Routes)

	return result, nil
}

func (s *LedgerService) Routes(e *echo.Echo) {
	ledgerGroup := e.Group("/api/ledger")

	ledgerGroup.GET("/balances", s.GetBalances)
	ledgerGroup.GET("/balances/:account", s.GetBalance)
	ledgerGroup.POST("/transfer", s.PostTransfer)
}

func (s *LedgerService) GetBalances(c echo.Context) error {
	//nolint:wrapcheck
	return c.JSON(http.StatusOK, s.Ledger.Snapshot())
}

func (s *LedgerService) GetBalance(c echo.Context) error {
	account := c.Param("account")
	amount := s.Ledger.BalanceOf(account)

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, Balance{
		Account: account,
		Amount:  amount,
		Display: FormatAmount(amount, s.Ledger.Decimals()),
	})
}

func (s *LedgerService) PostTransfer(c echo.Context) error {
	from, err := common.Caller(c)
	if err != nil {
		return err
	}

	var request TransferRequest

	err = c.Bind(&request)
	if err != nil || len(request.To) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err = s.Ledger.Transfer(from, request.To, request.Amount)

	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return echo.NewHTTPError(http.StatusPaymentRequired, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, Balance{
		Account: from,
		Amount:  s.Ledger.BalanceOf(from),
		Display: FormatAmount(s.Ledger.BalanceOf(from), s.Ledger.Decimals()),
	})
}
