// Package bot implements the echobot command handling: chat messages
// become replies, with per-sender rate limiting and a Redis debounce so
// two bots pointed at each other cannot loop.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Easy-Rad/wally/internal/domain"
	"github.com/Easy-Rad/wally/internal/metrics"
)

const (
	helpText = "\nEchobot commands:\nroster: Show today's roster"

	debounceWindow = 1 * time.Second

	// Per-sender reply budget: a short burst, then one reply per 2s.
	limiterRate  = 2 * time.Second
	limiterBurst = 3
)

// userDirectory is the slice of domain.UserRepository the bot reads.
type userDirectory interface {
	GetByPACS(ctx context.Context, pacs string) (*domain.User, error)
}

// Responder turns inbound message bodies into replies.
type Responder struct {
	users    userDirectory
	shifts   domain.ShiftSource
	debounce domain.Debouncer

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewResponder(users userDirectory, shifts domain.ShiftSource, debounce domain.Debouncer) *Responder {
	return &Responder{
		users:    users,
		shifts:   shifts,
		debounce: debounce,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Respond produces the reply for a message from the given PACS user.
// ok=false means stay silent (rate limited, debounced, or a lookup
// failed in a way that shouldn't be echoed back).
func (r *Responder) Respond(ctx context.Context, pacs, body string) (string, bool) {
	command := strings.TrimSpace(body)

	if !r.limiter(pacs).Allow() {
		metrics.BotReplies.WithLabelValues(commandLabel(command), "rate_limited").Inc()
		slog.WarnContext(ctx, "Bot reply rate limited", "pacs", pacs)
		return "", false
	}

	proceed, err := r.debounce.CheckDebounce(ctx, "bot:"+pacs+":"+command, debounceWindow)
	if err != nil {
		// Redis trouble shouldn't silence the bot entirely.
		slog.WarnContext(ctx, "Debounce check failed", "pacs", pacs, "error", err)
	} else if !proceed {
		metrics.BotReplies.WithLabelValues(commandLabel(command), "debounced").Inc()
		return "", false
	}

	switch command {
	case "roster":
		return r.roster(ctx, pacs)
	default:
		metrics.BotReplies.WithLabelValues("help", "ok").Inc()
		return helpText, true
	}
}

func (r *Responder) roster(ctx context.Context, pacs string) (string, bool) {
	user, err := r.users.GetByPACS(ctx, pacs)
	if errors.Is(err, domain.ErrUserNotFound) {
		metrics.BotReplies.WithLabelValues("roster", "unknown_user").Inc()
		return fmt.Sprintf("Username %q is not registered in the database, please contact my overlords", pacs), true
	}
	if err != nil {
		metrics.BotReplies.WithLabelValues("roster", "error").Inc()
		slog.ErrorContext(ctx, "Roster user lookup failed", "pacs", pacs, "error", err)
		return "", false
	}

	shifts, err := r.shifts.TodayShifts(ctx, user.PhySch)
	if err != nil {
		metrics.BotReplies.WithLabelValues("roster", "error").Inc()
		slog.ErrorContext(ctx, "Roster shift lookup failed", "pacs", pacs, "physch", user.PhySch, "error", err)
		return "Sorry, the roster database is not answering right now.", true
	}

	metrics.BotReplies.WithLabelValues("roster", "ok").Inc()
	var b strings.Builder
	fmt.Fprintf(&b, "\nToday's roster for %s %s (%s):\n", user.FirstName, user.LastName, user.PhySch)
	b.WriteString(strings.Join(shifts, "\n"))
	return b.String(), true
}

func (r *Responder) limiter(pacs string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[pacs]
	if !ok {
		l = rate.NewLimiter(rate.Every(limiterRate), limiterBurst)
		r.limiters[pacs] = l
	}
	return l
}

func commandLabel(command string) string {
	if command == "roster" {
		return "roster"
	}
	return "help"
}
