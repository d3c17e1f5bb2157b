// Package app is the supervisor: it runs whichever loops the configured
// mode asks for and gates the PS360 poller behind a Redis leader lease so
// only one replica ever holds a RAS session.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/Easy-Rad/wally/internal/metrics"
)

const (
	leaseRetryInterval = 10 * time.Second
	leaseRenewInterval = 15 * time.Second
)

// Runner is a long-running loop that exits cleanly on ctx cancellation.
type Runner interface {
	Run(ctx context.Context) error
}

// Lease is the slice of redis.LeaderElector the supervisor uses.
type Lease interface {
	TryAcquire(ctx context.Context) (bool, error)
	Renew(ctx context.Context) error
	Release(ctx context.Context) error
}

type Service struct {
	poller Runner // nil when mode excludes ps360
	xmpp   Runner // nil when mode excludes xmpp
	leader Lease
	clock  clockwork.Clock
}

func NewService(poller, xmpp Runner, leader Lease, clock clockwork.Clock) *Service {
	return &Service{
		poller: poller,
		xmpp:   xmpp,
		leader: leader,
		clock:  clock,
	}
}

// Run blocks until ctx is cancelled or one of the loops fails.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if s.poller != nil {
		g.Go(func() error { return s.runPollerWithLease(ctx) })
	}
	if s.xmpp != nil {
		g.Go(func() error { return s.xmpp.Run(ctx) })
	}
	return g.Wait()
}

func (s *Service) runPollerWithLease(ctx context.Context) error {
	for {
		acquired, err := s.leader.TryAcquire(ctx)
		if err != nil {
			slog.Error("Leader election failed", "error", err)
		}
		if acquired {
			slog.Info("Acquired PS360 poller lease")
			metrics.LeaderState.Set(1)
			err := s.leadPoll(ctx)
			metrics.LeaderState.Set(0)
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("PS360 poller lease ended", "error", err)
		}

		select {
		case <-s.clock.After(leaseRetryInterval):
		case <-ctx.Done():
			return nil
		}
	}
}

// leadPoll runs the poller while renewing the lease. Losing the lease
// cancels the poller; ctx cancellation releases it.
func (s *Service) leadPoll(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.poller.Run(pollCtx) }()

	ticker := s.clock.NewTicker(leaseRenewInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			return err
		case <-ticker.Chan():
			if err := s.leader.Renew(ctx); err != nil {
				cancel()
				<-done
				s.releaseLease()
				return err
			}
		case <-ctx.Done():
			cancel()
			<-done
			s.releaseLease()
			return ctx.Err()
		}
	}
}

// releaseLease is best-effort: the lease TTL reclaims it anyway.
func (s *Service) releaseLease() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.leader.Release(ctx); err != nil {
		slog.Warn("Failed to release poller lease", "error", err)
	}
}
