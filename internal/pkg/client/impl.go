package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/vreid/duel/internal/pkg/common"
	"github.com/vreid/duel/internal/pkg/duel"
	"github.com/vreid/duel/internal/pkg/ledger"
	"github.com/vreid/duel/internal/pkg/oracle"
)

var ErrRequestFailed = errors.New("request failed")

type apiError struct {
	Message string `json:"message"`
}

// Client talks to a running duel server on behalf of one account.
type Client struct {
	client *resty.Client
}

func New(baseURL, account string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader(common.AccountHeader, account).
		SetError(&apiError{})

	return &Client{client: client}
}

func (c *Client) Enter(ctx context.Context) (duel.Receipt, error) {
	var receipt duel.Receipt

	err := check(c.client.R().SetContext(ctx).SetResult(&receipt).Post("/api/duel/enter"))

	return receipt, err
}

func (c *Client) Config(ctx context.Context) (duel.ConfigView, error) {
	var view duel.ConfigView

	err := check(c.client.R().SetContext(ctx).SetResult(&view).Get("/api/duel/config"))

	return view, err
}

func (c *Client) SetRake(ctx context.Context, rake uint32) error {
	return check(c.client.R().SetContext(ctx).SetBody(duel.RakeRequest{Rake: rake}).Put("/api/duel/rake"))
}

func (c *Client) SetVault(ctx context.Context, vault string) error {
	return check(c.client.R().SetContext(ctx).SetBody(duel.VaultRequest{Vault: vault}).Put("/api/duel/vault"))
}

func (c *Client) Round(ctx context.Context, id oracle.CorrelationID) (duel.Round, error) {
	var round duel.Round

	err := check(c.client.R().
		SetContext(ctx).
		SetPathParam("id", string(id)).
		SetResult(&round).
		Get("/api/duel/rounds/{id}"))

	return round, err
}

func (c *Client) Balance(ctx context.Context, account string) (ledger.Balance, error) {
	var balance ledger.Balance

	err := check(c.client.R().
		SetContext(ctx).
		SetPathParam("account", account).
		SetResult(&balance).
		Get("/api/ledger/balances/{account}"))

	return balance, err
}

func (c *Client) Transfer(ctx context.Context, to string, amount uint64) (ledger.Balance, error) {
	var balance ledger.Balance

	err := check(c.client.R().
		SetContext(ctx).
		SetBody(ledger.TransferRequest{To: to, Amount: amount}).
		SetResult(&balance).
		Post("/api/ledger/transfer"))

	return balance, err
}

// Fulfill asks the server's local coordinator to answer a pending request,
// with fixed words when given.
func (c *Client) Fulfill(ctx context.Context, id oracle.CorrelationID, words []uint64) error {
	req := c.client.R().SetContext(ctx).SetPathParam("id", string(id))

	if len(words) > 0 {
		req = req.SetBody(oracle.Fulfillment{RequestID: id, RandomWords: words})
	}

	return check(req.Post("/api/oracle/mock/fulfill/{id}"))
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		message := resp.Status()
		if apiErr, ok := resp.Error().(*apiError); ok && len(apiErr.Message) > 0 {
			message = apiErr.Message
		}

		return fmt.Errorf("%w: %d %s", ErrRequestFailed, resp.StatusCode(), message)
	}

	return nil
}
