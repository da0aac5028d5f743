package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/do/v2"
	"github.com/vreid/duel/internal/pkg/client"
	"github.com/vreid/duel/internal/pkg/common"
	"github.com/vreid/duel/internal/pkg/config"
	"github.com/vreid/duel/internal/pkg/duel"
	"github.com/vreid/duel/internal/pkg/ledger"
	"github.com/vreid/duel/internal/pkg/oracle"
	"github.com/vreid/duel/internal/pkg/recordkeeper"

	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 5 * time.Second

var ErrInvalidFlag = errors.New("invalid flag value")

type DuelServer struct {
	EchoService *common.EchoService `do:""`

	LedgerService       *ledger.LedgerService             `do:""`
	BrokerService       *oracle.BrokerService             `do:""`
	DuelService         *duel.DuelService                 `do:""`
	RecordKeeperService *recordkeeper.RecordKeeperService `do:""`
}

func initLogger(cmd *cli.Command) error {
	level, err := zerolog.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return fmt.Errorf("%w: log-level: %w", ErrInvalidFlag, err)
	}

	loggerType, err := common.ParseLoggerType(cmd.String("log-format"))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFlag, err)
	}

	common.InitLogger(common.LogOptions{Level: level, Type: loggerType})

	return nil
}

//nolint:funlen
func runServer(ctx context.Context, cmd *cli.Command) error {
	err := initLogger(cmd)
	if err != nil {
		return err
	}

	rake := cmd.Uint64("rake")
	if rake > config.MaxRake {
		return fmt.Errorf("%w: rake %d exceeds %d", ErrInvalidFlag, rake, config.MaxRake)
	}

	i := do.New()

	do.ProvideNamedValue(i, "port", cmd.Int("port"))
	do.ProvideNamedValue(i, "data-dir", cmd.String("data-dir"))

	do.ProvideNamedValue(i, "entrance-fee", cmd.Uint64("entrance-fee"))
	do.ProvideNamedValue(i, "rake", uint32(rake))
	do.ProvideNamedValue(i, "vault", cmd.String("vault"))
	do.ProvideNamedValue(i, "operator", cmd.String("operator"))
	do.ProvideNamedValue(i, "contract-account", cmd.String("contract-account"))
	do.ProvideNamedValue(i, "initial-supply", cmd.Uint64("initial-supply"))
	do.ProvideNamedValue(i, "token-decimals", cmd.Int("token-decimals"))

	do.ProvideNamedValue(i, "oracle", cmd.String("oracle"))
	do.ProvideNamedValue(i, "oracle-url", cmd.String("oracle-url"))
	do.ProvideNamedValue(i, "oracle-callback-url", cmd.String("oracle-callback-url"))
	do.ProvideNamedValue(i, "oracle-secret", cmd.String("oracle-secret"))
	do.ProvideNamedValue(i, "oracle-timeout", cmd.Duration("oracle-timeout"))
	do.ProvideNamedValue(i, "key-hash", cmd.String("key-hash"))
	do.ProvideNamedValue(i, "subscription-id", cmd.Uint64("subscription-id"))
	do.ProvideNamedValue(i, "coordinator", cmd.String("coordinator"))
	do.ProvideNamedValue(i, "callback-gas-limit", cmd.Uint64("callback-gas-limit"))
	do.ProvideNamedValue(i, "request-confirmations", cmd.Uint64("request-confirmations"))
	do.ProvideNamedValue(i, "num-words", cmd.Uint64("num-words"))

	do.ProvideNamedValue(i, "fulfillment-timeout", cmd.Duration("fulfillment-timeout"))
	do.ProvideNamedValue(i, "refund-interval", cmd.Duration("refund-interval"))

	do.ProvideNamedValue(i, "valkey-address", cmd.String("valkey-address"))
	do.ProvideNamedValue(i, "valkey-channel", cmd.String("valkey-channel"))

	eventChan := make(chan duel.Event, 1000)
	var eventSource <-chan duel.Event = eventChan
	var eventSink chan<- duel.Event = eventChan

	do.ProvideNamedValue(i, "event-source", eventSource)
	do.ProvideNamedValue(i, "event-sink", eventSink)

	do.Provide(i, common.NewEchoService)
	do.Provide(i, common.NewDatabaseService)

	do.Provide(i, config.NewConfigService)
	do.Provide(i, ledger.NewLedgerService)
	do.Provide(i, oracle.NewBrokerService)
	do.Provide(i, duel.NewDuelService)
	do.Provide(i, recordkeeper.NewRecordKeeperService)

	do.Provide(i, do.InvokeStruct[DuelServer])

	duelServer, err := do.Invoke[DuelServer](i)
	if err != nil {
		return fmt.Errorf("failed to create duel server: %w", err)
	}

	duelServer.RecordKeeperService.Start()
	duelServer.DuelService.Start()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)

	go func() {
		errs <- duelServer.EchoService.Start()
	}()

	select {
	case err = <-errs:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	report := i.ShutdownWithContext(shutdownCtx)
	if report != nil && !report.Succeed {
		log.Printf("shutdown incomplete: %v", report)
	}

	return err
}

func newClient(cmd *cli.Command) *client.Client {
	return client.New(cmd.String("server"), cmd.String("account"), cmd.Duration("timeout"))
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	fmt.Println(string(out))

	return nil
}

func runEnter(ctx context.Context, cmd *cli.Command) error {
	receipt, err := newClient(cmd).Enter(ctx)
	if err != nil {
		//nolint:wrapcheck
		return err
	}

	return printJSON(receipt)
}

func runBalance(ctx context.Context, cmd *cli.Command) error {
	account := cmd.Args().First()
	if len(account) == 0 {
		account = cmd.String("account")
	}

	balance, err := newClient(cmd).Balance(ctx, account)
	if err != nil {
		//nolint:wrapcheck
		return err
	}

	return printJSON(balance)
}

func runTransfer(ctx context.Context, cmd *cli.Command) error {
	balance, err := newClient(cmd).Transfer(ctx, cmd.String("to"), cmd.Uint64("amount"))
	if err != nil {
		//nolint:wrapcheck
		return err
	}

	return printJSON(balance)
}

func runConfig(ctx context.Context, cmd *cli.Command) error {
	view, err := newClient(cmd).Config(ctx)
	if err != nil {
		//nolint:wrapcheck
		return err
	}

	return printJSON(view)
}

func runSetRake(ctx context.Context, cmd *cli.Command) error {
	rake := cmd.Uint64("rake")
	if rake > config.MaxRake {
		return fmt.Errorf("%w: rake %d exceeds %d", ErrInvalidFlag, rake, config.MaxRake)
	}

	//nolint:wrapcheck
	return newClient(cmd).SetRake(ctx, uint32(rake))
}

func runSetVault(ctx context.Context, cmd *cli.Command) error {
	//nolint:wrapcheck
	return newClient(cmd).SetVault(ctx, cmd.String("vault"))
}

func runFulfill(ctx context.Context, cmd *cli.Command) error {
	c := newClient(cmd)
	id := oracle.CorrelationID(cmd.String("id"))

	err := c.Fulfill(ctx, id, cmd.Uint64Slice("word"))
	if err != nil {
		//nolint:wrapcheck
		return err
	}

	round, err := c.Round(ctx, id)
	if err != nil {
		//nolint:wrapcheck
		return err
	}

	return printJSON(round)
}

//nolint:funlen,maintidx
func main() {
	clientFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Value:   "http://localhost:3000",
			Sources: cli.EnvVars("DUEL_SERVER"),
		},
		&cli.StringFlag{
			Name:    "account",
			Value:   "deployer",
			Sources: cli.EnvVars("DUEL_ACCOUNT"),
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Value:   10 * time.Second, //nolint:mnd
			Sources: cli.EnvVars("DUEL_TIMEOUT"),
		},
	}

	withClientFlags := func(flags ...cli.Flag) []cli.Flag {
		return append(append([]cli.Flag{}, clientFlags...), flags...)
	}

	//nolint:exhaustruct
	cmd := &cli.Command{
		Name:  "duel",
		Usage: "pairwise stablecoin wagers settled by verifiable randomness",
		Commands: []*cli.Command{
			{
				Name: "server",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Value:   3000, //nolint:mnd
						Sources: cli.EnvVars("DUEL_PORT"),
					},
					&cli.StringFlag{
						Name:    "data-dir",
						Value:   "./duel/data",
						Sources: cli.EnvVars("DUEL_DATA_DIR"),
					},
					&cli.StringFlag{
						Name:    "log-level",
						Value:   "info",
						Sources: cli.EnvVars("DUEL_LOG_LEVEL"),
					},
					&cli.StringFlag{
						Name:    "log-format",
						Value:   "console",
						Sources: cli.EnvVars("DUEL_LOG_FORMAT"),
					},
					&cli.Uint64Flag{
						Name:    "entrance-fee",
						Value:   5000000, //nolint:mnd
						Sources: cli.EnvVars("DUEL_ENTRANCE_FEE"),
					},
					&cli.Uint64Flag{
						Name:    "rake",
						Value:   0,
						Usage:   "basis points of each pot paid to the vault",
						Sources: cli.EnvVars("DUEL_RAKE"),
					},
					&cli.StringFlag{
						Name:    "vault",
						Value:   "vault",
						Sources: cli.EnvVars("DUEL_VAULT"),
					},
					&cli.StringFlag{
						Name:    "operator",
						Value:   "deployer",
						Sources: cli.EnvVars("DUEL_OPERATOR"),
					},
					&cli.StringFlag{
						Name:    "contract-account",
						Value:   "duel",
						Sources: cli.EnvVars("DUEL_CONTRACT_ACCOUNT"),
					},
					&cli.Uint64Flag{
						Name:    "initial-supply",
						Value:   1000000000000, //nolint:mnd
						Sources: cli.EnvVars("DUEL_INITIAL_SUPPLY"),
					},
					&cli.IntFlag{
						Name:    "token-decimals",
						Value:   6, //nolint:mnd
						Sources: cli.EnvVars("DUEL_TOKEN_DECIMALS"),
					},
					&cli.StringFlag{
						Name:    "oracle",
						Value:   oracle.MockKind,
						Usage:   "mock or http",
						Sources: cli.EnvVars("DUEL_ORACLE"),
					},
					&cli.StringFlag{
						Name:    "oracle-url",
						Sources: cli.EnvVars("DUEL_ORACLE_URL"),
					},
					&cli.StringFlag{
						Name:    "oracle-callback-url",
						Value:   "http://localhost:3000/api/oracle/fulfill",
						Sources: cli.EnvVars("DUEL_ORACLE_CALLBACK_URL"),
					},
					&cli.StringFlag{
						Name:    "oracle-secret",
						Sources: cli.EnvVars("DUEL_ORACLE_SECRET"),
					},
					&cli.DurationFlag{
						Name:    "oracle-timeout",
						Value:   5 * time.Second, //nolint:mnd
						Sources: cli.EnvVars("DUEL_ORACLE_TIMEOUT"),
					},
					&cli.StringFlag{
						Name:    "key-hash",
						Value:   "0xd89b2bf150e3b9e13446986e571fb9cab24b13cea0a43ea20a6049a85cc807cc",
						Sources: cli.EnvVars("DUEL_KEY_HASH"),
					},
					&cli.Uint64Flag{
						Name:    "subscription-id",
						Value:   1,
						Sources: cli.EnvVars("DUEL_SUBSCRIPTION_ID"),
					},
					&cli.StringFlag{
						Name:    "coordinator",
						Value:   "coordinator",
						Sources: cli.EnvVars("DUEL_COORDINATOR"),
					},
					&cli.Uint64Flag{
						Name:    "callback-gas-limit",
						Value:   500000, //nolint:mnd
						Sources: cli.EnvVars("DUEL_CALLBACK_GAS_LIMIT"),
					},
					&cli.Uint64Flag{
						Name:    "request-confirmations",
						Value:   3, //nolint:mnd
						Sources: cli.EnvVars("DUEL_REQUEST_CONFIRMATIONS"),
					},
					&cli.Uint64Flag{
						Name:    "num-words",
						Value:   1,
						Sources: cli.EnvVars("DUEL_NUM_WORDS"),
					},
					&cli.DurationFlag{
						Name:    "fulfillment-timeout",
						Value:   0,
						Usage:   "refund rounds left pending this long, 0 disables",
						Sources: cli.EnvVars("DUEL_FULFILLMENT_TIMEOUT"),
					},
					&cli.DurationFlag{
						Name:    "refund-interval",
						Value:   time.Minute,
						Sources: cli.EnvVars("DUEL_REFUND_INTERVAL"),
					},
					&cli.StringFlag{
						Name:    "valkey-address",
						Sources: cli.EnvVars("DUEL_VALKEY_ADDRESS"),
					},
					&cli.StringFlag{
						Name:    "valkey-channel",
						Value:   "duel:events",
						Sources: cli.EnvVars("DUEL_VALKEY_CHANNEL"),
					},
				},
				Action: runServer,
			},
			{
				Name:   "enter",
				Usage:  "escrow the entrance fee and join the queue",
				Flags:  withClientFlags(),
				Action: runEnter,
			},
			{
				Name:      "balance",
				Usage:     "show an account balance",
				ArgsUsage: "[account]",
				Flags:     withClientFlags(),
				Action:    runBalance,
			},
			{
				Name:  "transfer",
				Usage: "send stablecoin to another account",
				Flags: withClientFlags(
					&cli.StringFlag{Name: "to", Required: true},
					&cli.Uint64Flag{Name: "amount", Required: true},
				),
				Action: runTransfer,
			},
			{
				Name:   "config",
				Usage:  "show entrance fee, rake, vault and oracle parameters",
				Flags:  withClientFlags(),
				Action: runConfig,
			},
			{
				Name:  "set-rake",
				Usage: "change the rake in basis points (operator only)",
				Flags: withClientFlags(
					&cli.Uint64Flag{Name: "rake", Required: true},
				),
				Action: runSetRake,
			},
			{
				Name:  "set-vault",
				Usage: "change the vault account (operator only)",
				Flags: withClientFlags(
					&cli.StringFlag{Name: "vault", Required: true},
				),
				Action: runSetVault,
			},
			{
				Name:  "fulfill",
				Usage: "answer a pending request on the local coordinator",
				Flags: withClientFlags(
					&cli.StringFlag{Name: "id", Required: true},
					&cli.Uint64SliceFlag{Name: "word"},
				),
				Action: runFulfill,
			},
		},
		DefaultCommand: "server",
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
