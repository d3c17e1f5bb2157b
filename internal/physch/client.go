// Package physch reads today's roster from the PhySch scheduling
// database (SQL Server). Read-only; the bot is the only consumer.
package physch

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/sony/gobreaker"

	"github.com/Easy-Rad/wally/internal/metrics"
)

const queryTimeout = 10 * time.Second

// Config carries the connection parameters for the PhySch server.
// The SSO account authenticates as DOMAIN\user.
type Config struct {
	Host     string
	Database string
	Domain   string
	User     string
	Password string
}

// Client implements domain.ShiftSource over SQL Server, with a circuit
// breaker so a hung scheduling server cannot stall the echobot.
type Client struct {
	db      *sql.DB
	clock   clockwork.Clock
	breaker *gobreaker.CircuitBreaker
	query   func(ctx context.Context, abbr string) ([]string, error)
}

func NewClient(cfg Config, clock clockwork.Clock) (*Client, error) {
	dsn := fmt.Sprintf("server=%s;user id=%s\\%s;password=%s;database=%s",
		cfg.Host, cfg.Domain, cfg.User, cfg.Password, cfg.Database)

	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open physch connection: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "physch",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerStateChanges.WithLabelValues(name, to.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	c := &Client{db: db, clock: clock, breaker: breaker}
	c.query = c.queryShifts
	return c, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// dateKey is PhySch's integer encoding of a calendar day (yyyymmdd).
func dateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// TodayShifts returns the shift names the employee is rostered on today,
// in PhySch display order.
func (c *Client) TodayShifts(ctx context.Context, abbr string) ([]string, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, queryTimeout)
		defer cancel()
		return c.query(ctx, abbr)
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (c *Client) queryShifts(ctx context.Context, abbr string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		select ShiftName
		from SchedData
		join Employee on SchedData.EmployeeID = Employee.EmployeeID
		join Shift on SchedData.ShiftID = Shift.ShiftID
		where AssignDate = @p1
		and Employee.Abbr = @p2
		order by Shift.DisplayOrder, Shift.ShiftName
	`, dateKey(c.clock.Now()), abbr)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	defer rows.Close()

	var shifts []string
	for rows.Next() {
		var shift string
		if err := rows.Scan(&shift); err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		shifts = append(shifts, shift)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read shifts: %w", err)
	}
	return shifts, nil
}

// Ping verifies the PhySch connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}
