package recordkeeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/samber/do/v2"
	"github.com/vreid/duel/internal/pkg/common"
	"github.com/vreid/duel/internal/pkg/duel"
	"go.etcd.io/bbolt"
)

const (
	DefaultEventLimit = 100
	publishTimeout    = 2 * time.Second
)

var (
	ErrRoundsBucketNotFound     = errors.New("rounds bucket doesn't exist")
	ErrEventsBucketNotFound     = errors.New("events bucket doesn't exist")
	ErrScorecardsBucketNotFound = errors.New("scorecards bucket doesn't exist")
)

// Scorecard sums up one account's settled rounds.
type Scorecard struct {
	Account string `json:"account"`
	Played  int64  `json:"played"`
	Won     int64  `json:"won"`
	Staked  uint64 `json:"staked"`
	Paid    uint64 `json:"paid"`
}

// RecordKeeperService keeps the round history outside the engine: every
// event is appended to the events bucket and the latest state of each round
// is kept in the rounds bucket.
type RecordKeeperService struct {
	DatabaseService *common.DatabaseService

	EventSource <-chan duel.Event

	Publisher Publisher
	Channel   string

	Logger zerolog.Logger
}

func NewRecordKeeperService(i do.Injector) (*RecordKeeperService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	eventSource := do.MustInvokeNamed[<-chan duel.Event](i, "event-source")
	valkeyAddress := do.MustInvokeNamed[string](i, "valkey-address")
	valkeyChannel := do.MustInvokeNamed[string](i, "valkey-channel")

	result := &RecordKeeperService{
		DatabaseService: databaseService,

		EventSource: eventSource,

		Channel: valkeyChannel,

		Logger: common.Component("recordkeeper"),
	}

	if len(valkeyAddress) > 0 {
		publisher, err := NewValkeyPublisher(valkeyAddress)
		if err != nil {
			return nil, err
		}

		result.Publisher = publisher
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(result.Routes)

	return result, nil
}

func (s *RecordKeeperService) Routes(e *echo.Echo) {
	historyGroup := e.Group("/api/history")

	historyGroup.GET("/rounds", s.GetRounds)
	historyGroup.GET("/events", s.GetEvents)
	historyGroup.GET("/accounts/:account", s.GetScorecard)
}

func (s *RecordKeeperService) Start() {
	go s.processEvents()
}

func (s *RecordKeeperService) Shutdown() error {
	if s.Publisher != nil {
		s.Publisher.Close()
	}

	return nil
}

func (s *RecordKeeperService) HandleEvent(event duel.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		events := tx.Bucket([]byte(common.HistoryEventsBucket))
		if events == nil {
			return ErrEventsBucketNotFound
		}

		seq, err := events.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate event sequence: %w", err)
		}

		err = events.Put(common.Uint64ToKey(seq), payload)
		if err != nil {
			return fmt.Errorf("failed to put event: %w", err)
		}

		if event.Round == nil {
			return nil
		}

		rounds := tx.Bucket([]byte(common.HistoryRoundsBucket))
		if rounds == nil {
			return ErrRoundsBucketNotFound
		}

		round, err := json.Marshal(event.Round)
		if err != nil {
			return fmt.Errorf("failed to marshal round: %w", err)
		}

		err = rounds.Put([]byte(event.Round.ID), round)
		if err != nil {
			return fmt.Errorf("failed to put round: %w", err)
		}

		if event.Kind != duel.EventRoundSettled {
			return nil
		}

		return updateScorecards(tx, event.Round)
	})
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	if s.Publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		err = s.Publisher.Publish(ctx, s.Channel, payload)
		if err != nil {
			return err
		}
	}

	return nil
}

func UpdateScorecard(card Scorecard, round *duel.Round) Scorecard {
	for _, entrant := range round.Entrants {
		if entrant.Account != card.Account {
			continue
		}

		card.Played++
		card.Staked += entrant.Fee
	}

	if round.Winner == card.Account {
		card.Won++
		card.Paid += round.Payout
	}

	return card
}

func updateScorecards(tx *bbolt.Tx, round *duel.Round) error {
	scorecards := tx.Bucket([]byte(common.HistoryScorecardsBucket))
	if scorecards == nil {
		return ErrScorecardsBucketNotFound
	}

	for _, entrant := range round.Entrants {
		card := Scorecard{Account: entrant.Account}

		raw := scorecards.Get([]byte(entrant.Account))
		if len(raw) > 0 {
			err := json.Unmarshal(raw, &card)
			if err != nil {
				return fmt.Errorf("failed to unmarshal scorecard: %w", err)
			}
		}

		updated, err := json.Marshal(UpdateScorecard(card, round))
		if err != nil {
			return fmt.Errorf("failed to marshal scorecard: %w", err)
		}

		err = scorecards.Put([]byte(entrant.Account), updated)
		if err != nil {
			return fmt.Errorf("failed to put scorecard: %w", err)
		}
	}

	return nil
}

func (s *RecordKeeperService) Scorecard(account string) (Scorecard, error) {
	card := Scorecard{Account: account}

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		scorecards := tx.Bucket([]byte(common.HistoryScorecardsBucket))
		if scorecards == nil {
			return ErrScorecardsBucketNotFound
		}

		raw := scorecards.Get([]byte(account))
		if len(raw) == 0 {
			return nil
		}

		//nolint:wrapcheck
		return json.Unmarshal(raw, &card)
	})
	if err != nil {
		return Scorecard{}, fmt.Errorf("failed to read scorecard: %w", err)
	}

	return card, nil
}

func (s *RecordKeeperService) Rounds(status duel.Status) ([]duel.Round, error) {
	result := []duel.Round{}

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		rounds := tx.Bucket([]byte(common.HistoryRoundsBucket))
		if rounds == nil {
			return ErrRoundsBucketNotFound
		}

		return rounds.ForEach(func(_, v []byte) error {
			var round duel.Round

			err := json.Unmarshal(v, &round)
			if err != nil {
				return fmt.Errorf("failed to unmarshal round: %w", err)
			}

			if len(status) == 0 || round.Status == status {
				result = append(result, round)
			}

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read rounds: %w", err)
	}

	return result, nil
}

// Events returns up to limit events, newest first.
func (s *RecordKeeperService) Events(limit int) ([]duel.Event, error) {
	result := []duel.Event{}

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		events := tx.Bucket([]byte(common.HistoryEventsBucket))
		if events == nil {
			return ErrEventsBucketNotFound
		}

		c := events.Cursor()
		for k, v := c.Last(); k != nil && len(result) < limit; k, v = c.Prev() {
			var event duel.Event

			err := json.Unmarshal(v, &event)
			if err != nil {
				return fmt.Errorf("failed to unmarshal event: %w", err)
			}

			result = append(result, event)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	return result, nil
}

func (s *RecordKeeperService) GetRounds(c echo.Context) error {
	rounds, err := s.Rounds(duel.Status(c.QueryParam("status")))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read rounds")
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, rounds)
}

func (s *RecordKeeperService) GetEvents(c echo.Context) error {
	limit := DefaultEventLimit

	if raw := c.QueryParam("limit"); len(raw) > 0 {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}

		limit = parsed
	}

	events, err := s.Events(limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read events")
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, events)
}

func (s *RecordKeeperService) GetScorecard(c echo.Context) error {
	card, err := s.Scorecard(c.Param("account"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read scorecard")
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, card)
}

func (s *RecordKeeperService) processEvents() {
	for event := range s.EventSource {
		err := s.HandleEvent(event)
		if err != nil {
			s.Logger.Error().Err(err).Str("kind", string(event.Kind)).Uint64("marker", event.Marker).Msg("failed to record event")
		}
	}
}
