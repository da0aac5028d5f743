package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/samber/do/v2"
	"github.com/vreid/duel/internal/pkg/common"
)

const (
	MockKind   = "mock"
	RemoteKind = "http"
)

var ErrUnknownKind = errors.New("unknown oracle kind")

type BrokerService struct {
	Broker Broker

	Mock   *MockCoordinator
	Remote *RemoteCoordinator

	logger zerolog.Logger
}

func NewBrokerService(i do.Injector) (*BrokerService, error) {
	kind := do.MustInvokeNamed[string](i, "oracle")

	result := &BrokerService{
		logger: common.Component("oracle"),
	}

	switch kind {
	case MockKind:
		result.Mock = NewMockCoordinator()
		result.Broker = result.Mock
	case RemoteKind:
		oracleURL := do.MustInvokeNamed[string](i, "oracle-url")
		callbackURL := do.MustInvokeNamed[string](i, "oracle-callback-url")
		secret := do.MustInvokeNamed[string](i, "oracle-secret")
		timeout := do.MustInvokeNamed[time.Duration](i, "oracle-timeout")

		result.Remote = NewRemoteCoordinator(oracleURL, callbackURL, secret, timeout)
		result.Broker = result.Remote
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(result.Routes)

	return result, nil
}

func ForMock(mock *MockCoordinator) *BrokerService {
	return &BrokerService{Broker: mock, Mock: mock, logger: common.Component("oracle")}
}

func ForRemote(remote *RemoteCoordinator) *BrokerService {
	return &BrokerService{Broker: remote, Remote: remote, logger: common.Component("oracle")}
}

func (s *BrokerService) Routes(e *echo.Echo) {
	oracleGroup := e.Group("/api/oracle")

	if s.Remote != nil {
		oracleGroup.POST("/fulfill", s.PostFulfill)
	}

	if s.Mock != nil {
		oracleGroup.GET("/mock/pending", s.GetMockPending)
		oracleGroup.POST("/mock/fulfill/:id", s.PostMockFulfill)
	}
}

func (s *BrokerService) PostFulfill(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	var fulfillment Fulfillment

	err = json.Unmarshal(body, &fulfillment)
	if err != nil || len(fulfillment.RequestID) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid fulfillment")
	}

	err = s.Remote.Deliver(c.Request().Context(), body, c.Request().Header.Get(SignatureHeader), fulfillment)

	return s.fulfillmentResult(c, fulfillment.RequestID, err)
}

func (s *BrokerService) GetMockPending(c echo.Context) error {
	//nolint:wrapcheck
	return c.JSON(http.StatusOK, s.Mock.Pending())
}

func (s *BrokerService) PostMockFulfill(c echo.Context) error {
	id := CorrelationID(c.Param("id"))

	var fulfillment Fulfillment

	if c.Request().ContentLength > 0 {
		err := c.Bind(&fulfillment)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}

	var err error
	if len(fulfillment.RandomWords) > 0 {
		err = s.Mock.FulfillWithWords(c.Request().Context(), id, fulfillment.RandomWords)
	} else {
		err = s.Mock.Fulfill(c.Request().Context(), id)
	}

	return s.fulfillmentResult(c, id, err)
}

func (s *BrokerService) fulfillmentResult(c echo.Context, id CorrelationID, err error) error {
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, ErrInvalidSignature):
		s.logger.Warn().Str("request_id", string(id)).Msg("rejected unsigned fulfillment")

		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, ErrUnknownRequest):
		return echo.NewHTTPError(http.StatusNotFound, "unknown request")
	default:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
}
