package duel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/samber/do/v2"
	"github.com/vreid/duel/internal/pkg/common"
	"github.com/vreid/duel/internal/pkg/config"
	"github.com/vreid/duel/internal/pkg/ledger"
	"github.com/vreid/duel/internal/pkg/oracle"
	"github.com/vreid/duel/internal/pkg/queue"
)

type DuelService struct {
	Engine *Engine
	Config *config.Store
	Ledger *ledger.Ledger

	FulfillmentTimeout time.Duration
	RefundInterval     time.Duration

	Logger zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDuelService(i do.Injector) (*DuelService, error) {
	store := do.MustInvoke[*config.Store](i)
	ldgr := do.MustInvoke[*ledger.LedgerService](i).Ledger
	brokerService := do.MustInvoke[*oracle.BrokerService](i)

	eventSink := do.MustInvokeNamed[chan<- Event](i, "event-sink")
	contractAccount := do.MustInvokeNamed[string](i, "contract-account")
	fulfillmentTimeout := do.MustInvokeNamed[time.Duration](i, "fulfillment-timeout")
	refundInterval := do.MustInvokeNamed[time.Duration](i, "refund-interval")

	logger := common.Component("engine")

	result := &DuelService{
		Engine: NewEngine(Options{
			Ledger:  ldgr,
			Config:  store,
			Broker:  brokerService.Broker,
			Account: contractAccount,
			Sink:    eventSink,
			Logger:  logger,
		}),
		Config: store,
		Ledger: ldgr,

		FulfillmentTimeout: fulfillmentTimeout,
		RefundInterval:     refundInterval,

		Logger: logger,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(result.Routes)

	return result, nil
}

func (s *DuelService) Routes(e *echo.Echo) {
	duelGroup := e.Group("/api/duel")

	duelGroup.POST("/enter", s.PostEnter)
	duelGroup.GET("/config", s.GetConfig)
	duelGroup.PUT("/rake", s.PutRake)
	duelGroup.PUT("/vault", s.PutVault)
	duelGroup.GET("/queue", s.GetQueue)
	duelGroup.GET("/rounds", s.GetRounds)
	duelGroup.GET("/rounds/:id", s.GetRound)
	duelGroup.GET("/stats", s.GetStats)
}

// Start runs the refund sweeper when a fulfillment timeout is configured.
func (s *DuelService) Start() {
	if s.FulfillmentTimeout <= 0 {
		return
	}

	interval := s.RefundInterval
	if interval <= 0 {
		interval = s.FulfillmentTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.sweep(ctx, interval)
	}()
}

func (s *DuelService) Shutdown() error {
	if s.cancel != nil {
		s.cancel()
	}

	s.wg.Wait()

	return nil
}

func (s *DuelService) sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refunded := s.Engine.ExpirePending(s.FulfillmentTimeout)
			if len(refunded) > 0 {
				s.Logger.Info().Int("rounds", len(refunded)).Msg("refunded expired rounds")
			}
		}
	}
}

type ConfigView struct {
	config.Settings

	ContractAccount    string `json:"contract_account"`
	EntranceFeeDisplay string `json:"entrance_fee_display"`
}

type RakeRequest struct {
	Rake uint32 `json:"rake"`
}

type VaultRequest struct {
	Vault string `json:"vault"`
}

func (s *DuelService) PostEnter(c echo.Context) error {
	account, err := common.Caller(c)
	if err != nil {
		return err
	}

	receipt, err := s.Engine.Enter(c.Request().Context(), account)
	if err != nil {
		return toHTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusCreated, receipt)
}

func (s *DuelService) GetConfig(c echo.Context) error {
	settings := s.Config.Snapshot()

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, ConfigView{
		Settings:           settings,
		ContractAccount:    s.Engine.Account(),
		EntranceFeeDisplay: ledger.FormatAmount(settings.EntranceFee, s.Ledger.Decimals()),
	})
}

func (s *DuelService) PutRake(c echo.Context) error {
	caller, err := common.Caller(c)
	if err != nil {
		return err
	}

	var request RakeRequest

	err = c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err = s.Engine.SetRake(caller, request.Rake)
	if err != nil {
		return toHTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *DuelService) PutVault(c echo.Context) error {
	caller, err := common.Caller(c)
	if err != nil {
		return err
	}

	var request VaultRequest

	err = c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err = s.Engine.SetVault(caller, request.Vault)
	if err != nil {
		return toHTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *DuelService) GetQueue(c echo.Context) error {
	//nolint:wrapcheck
	return c.JSON(http.StatusOK, s.Engine.Queue())
}

func (s *DuelService) GetRounds(c echo.Context) error {
	status := Status(c.QueryParam("status"))

	switch status {
	case "", StatusPending, StatusSettled, StatusRefunded:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, s.Engine.Rounds(status))
}

func (s *DuelService) GetRound(c echo.Context) error {
	round, err := s.Engine.Round(oracle.CorrelationID(c.Param("id")))
	if err != nil {
		return toHTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, round)
}

func (s *DuelService) GetStats(c echo.Context) error {
	//nolint:wrapcheck
	return c.JSON(http.StatusOK, s.Engine.Stats())
}

func toHTTPError(err error) *echo.HTTPError {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, config.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, queue.ErrAlreadyQueued), errors.Is(err, ErrIntegrityViolation):
		status = http.StatusConflict
	case errors.Is(err, oracle.ErrBrokerUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ErrRoundNotFound):
		status = http.StatusNotFound
	case errors.Is(err, config.ErrRakeOutOfRange),
		errors.Is(err, config.ErrMissingAccount),
		errors.Is(err, ErrInvalidEntrant):
		status = http.StatusBadRequest
	}

	return echo.NewHTTPError(status, err.Error())
}
