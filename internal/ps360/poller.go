package ps360

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Easy-Rad/wally/internal/domain"
	"github.com/Easy-Rad/wally/internal/metrics"
	"github.com/Easy-Rad/wally/internal/platform/correlation"
	"github.com/Easy-Rad/wally/internal/platform/retry"
)

const (
	defaultLookback        = 60 * time.Minute
	defaultPollInterval    = 60 * time.Second
	defaultSessionDuration = 24 * time.Hour
	defaultRetryDelay      = 60 * time.Second

	// fromNudge keeps BrowseOrders from returning the order whose
	// LastModifiedDate is exactly the high-water mark again.
	fromNudge = 500 * time.Millisecond
)

// API is the subset of the RAS client the poller uses.
type API interface {
	SignIn(ctx context.Context) (SignInInfo, error)
	SignOut(ctx context.Context) error
	BrowseOrders(ctx context.Context, from, to time.Time) ([]Order, error)
	ReportEvents(ctx context.Context, reportID int64) ([]ReportEvent, error)
}

// eventStore is the slice of domain.UserRepository the poller writes to.
type eventStore interface {
	UpdateLastEvents(ctx context.Context, events map[int64]domain.LastEvent) error
}

// Poller maintains a RAS session and periodically sweeps completed
// orders for report events, keeping the newest event per account and
// flushing changes to the store.
type Poller struct {
	api   API
	store eventStore
	clock clockwork.Clock

	lookback        time.Duration
	pollInterval    time.Duration
	sessionDuration time.Duration
	retryDelay      time.Duration

	lastUpdated time.Time
	lastEvents  map[int64]domain.LastEvent

	soapRetry retry.Policy
}

func NewPoller(api API, store eventStore, clock clockwork.Clock) *Poller {
	return &Poller{
		api:             api,
		store:           store,
		clock:           clock,
		lookback:        defaultLookback,
		pollInterval:    defaultPollInterval,
		sessionDuration: defaultSessionDuration,
		retryDelay:      defaultRetryDelay,
		lastEvents:      make(map[int64]domain.LastEvent),
		soapRetry: retry.Policy{
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				slog.Warn("PS360 call failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
			},
		},
	}
}

// Run cycles RAS sessions until ctx is cancelled. A session polls every
// pollInterval for up to sessionDuration, then is renewed; any error
// tears the session down and a fresh one starts after retryDelay.
func (p *Poller) Run(ctx context.Context) error {
	p.lastUpdated = p.clock.Now().Add(-p.lookback)

	for {
		slog.Info("Starting new PS360 session")
		err := p.runSession(ctx)
		if err == nil {
			slog.Info("PS360 session finished")
			continue
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			slog.Info("PS360 poller stopping")
			return nil
		}

		slog.Error("PS360 error occurred", "error", err)
		slog.Info("Waiting before retrying", "delay", p.retryDelay)
		select {
		case <-p.clock.After(p.retryDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Poller) runSession(ctx context.Context) error {
	if _, err := p.api.SignIn(ctx); err != nil {
		return err
	}
	defer func() {
		// Best-effort sign-out, even when ctx is already cancelled.
		signOutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := p.api.SignOut(signOutCtx); err != nil {
			slog.Warn("PS360 sign-out failed", "error", err)
		}
	}()

	deadline := p.clock.Now().Add(p.sessionDuration)
	for p.clock.Now().Before(deadline) {
		pollCtx := correlation.WithID(ctx, correlation.NewID())
		if err := p.poll(pollCtx); err != nil {
			metrics.PS360PollCycles.WithLabelValues("error").Inc()
			return err
		}
		metrics.PS360PollCycles.WithLabelValues("ok").Inc()

		select {
		case <-p.clock.After(p.pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *Poller) poll(ctx context.Context) error {
	from := p.lastUpdated.Add(fromNudge)
	to := p.clock.Now()

	orders, err := retry.Do(ctx, p.soapRetry, p.classify, func() ([]Order, error) {
		return p.api.BrowseOrders(ctx, from, to)
	})
	if err != nil {
		return err
	}
	if len(orders) > 0 {
		slog.InfoContext(ctx, "Found updated orders", "count", len(orders), "since", p.lastUpdated)
		metrics.PS360OrdersSeen.Add(float64(len(orders)))
	}

	dirty := make(map[int64]domain.LastEvent)
	for _, order := range orders {
		if order.LastModifiedDate.After(p.lastUpdated) {
			p.lastUpdated = order.LastModifiedDate
		}

		events, err := retry.Do(ctx, p.soapRetry, p.classify, func() ([]ReportEvent, error) {
			return p.api.ReportEvents(ctx, order.ReportID)
		})
		if err != nil {
			return err
		}

		for _, event := range events {
			p.track(ctx, event, dirty)
		}
	}

	return p.store.UpdateLastEvents(ctx, dirty)
}

func (p *Poller) track(ctx context.Context, event ReportEvent, dirty map[int64]domain.LastEvent) {
	eventType, err := domain.ParseEventType(event.Type)
	if err != nil {
		return
	}

	last := domain.LastEvent{
		Type:           eventType,
		Timestamp:      event.EventTime,
		Workstation:    event.Workstation,
		AdditionalInfo: event.AdditionalInfo,
	}

	prev, seen := p.lastEvents[event.AccountID]
	if seen && !last.Newer(prev) {
		return
	}

	p.lastEvents[event.AccountID] = last
	dirty[event.AccountID] = last
	metrics.PS360ReportEvents.WithLabelValues(string(eventType)).Inc()

	slog.InfoContext(ctx, "Report event",
		"time", last.Timestamp,
		"type", last.Type,
		"user", event.AccountName,
		"account_id", event.AccountID,
		"workstation", last.Workstation,
		"info", last.AdditionalInfo,
	)
}

func (p *Poller) classify(err error) retry.Action {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	return retry.Retry
}
