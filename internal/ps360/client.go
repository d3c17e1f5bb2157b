// Package ps360 talks to the PowerScribe 360 RAS SOAP services and polls
// them for report events.
package ps360

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Easy-Rad/wally/internal/metrics"
)

// Session parameters the original integration pins. The RAS services
// reject sign-ins from unknown client versions.
const (
	psVersion  = "7.0.212.0"
	locale     = "en-NZ"
	timeZoneID = "New Zealand Standard Time"
	siteID     = 0
	pageSize   = 3000
)

// Credentials for the PS360 service account.
type Credentials struct {
	Username string
	Password string
}

// Client is a SOAP 1.2 client for the three RAS services. It captures
// the AccountSession header from every response and echoes it on every
// subsequent request, mirroring the session plugin the upstream clients
// use.
type Client struct {
	httpClient *http.Client
	creds      Credentials

	sessionURL  string
	explorerURL string
	reportURL   string

	mu        sync.Mutex
	session   string
	accountID int64
	firstName string
	lastName  string
}

func NewClient(host string, creds Credentials, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	base := "http://" + host + "/RAS/"
	return &Client{
		httpClient:  httpClient,
		creds:       creds,
		sessionURL:  base + "Session.svc",
		explorerURL: base + "Explorer.svc",
		reportURL:   base + "Report.svc",
	}
}

// SignIn opens a RAS session for the service account.
func (c *Client) SignIn(ctx context.Context) (SignInInfo, error) {
	req := signInRequest{
		XMLNS:       rasNS,
		LoginName:   c.creds.Username,
		Password:    c.creds.Password,
		AdminMode:   false,
		Version:     psVersion,
		Workstation: "",
		Locale:      locale,
		TimeZoneID:  timeZoneID,
	}

	var resp signInResponse
	if err := c.call(ctx, c.sessionURL, "ISession/SignIn", req, &resp); err != nil {
		metrics.PS360Sessions.WithLabelValues("error").Inc()
		return SignInInfo{}, fmt.Errorf("SignIn: %w", err)
	}

	c.mu.Lock()
	c.accountID = resp.Result.AccountID
	c.firstName = resp.Result.Person.FirstName
	c.lastName = resp.Result.Person.LastName
	session := c.session
	c.mu.Unlock()

	if session == "" {
		metrics.PS360Sessions.WithLabelValues("error").Inc()
		return SignInInfo{}, fmt.Errorf("SignIn: response carried no AccountSession header")
	}

	metrics.PS360Sessions.WithLabelValues("ok").Inc()
	info := SignInInfo{
		AccountID: resp.Result.AccountID,
		FirstName: resp.Result.Person.FirstName,
		LastName:  resp.Result.Person.LastName,
		SessionID: session,
	}
	slog.InfoContext(ctx, "New PS360 session",
		"name", info.FirstName+" "+info.LastName,
		"account_id", info.AccountID,
		"session_id", info.SessionID,
	)
	return info, nil
}

// SignOut closes the current session, if any.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == "" {
		return nil
	}

	var resp signOutResponse
	if err := c.call(ctx, c.sessionURL, "ISession/SignOut", signOutRequest{XMLNS: rasNS}, &resp); err != nil {
		return fmt.Errorf("SignOut: %w", err)
	}
	if resp.Result {
		c.mu.Lock()
		c.session = ""
		c.mu.Unlock()
		slog.InfoContext(ctx, "PS360 signed out", "session_id", session)
	}
	return nil
}

// BrowseOrders lists completed, reported orders modified within [from, to].
func (c *Client) BrowseOrders(ctx context.Context, from, to time.Time) ([]Order, error) {
	const timeLayout = "2006-01-02T15:04:05.000-07:00"
	req := browseOrdersRequest{
		XMLNS:  rasNS,
		SiteID: siteID,
		Time: browseTimeRange{
			Period: "Custom",
			From:   from.Format(timeLayout),
			To:     to.Format(timeLayout),
		},
		OrderStatus:    "Completed",
		TransferStatus: "All",
		ReportStatus:   "Reported",
		Sort:           "LastModifiedDate ASC",
		PageSize:       pageSize,
		PageNumber:     1,
	}

	var resp browseOrdersResponse
	if err := c.call(ctx, c.explorerURL, "IExplorer/BrowseOrders", req, &resp); err != nil {
		return nil, fmt.Errorf("BrowseOrders: %w", err)
	}

	orders := make([]Order, 0, len(resp.Orders))
	for _, row := range resp.Orders {
		orders = append(orders, Order{
			ReportID:         row.ReportID,
			LastModifiedDate: row.LastModifiedDate.Time,
		})
	}
	return orders, nil
}

// ReportEvents fetches the event trail of a report.
func (c *Client) ReportEvents(ctx context.Context, reportID int64) ([]ReportEvent, error) {
	req := getReportEventsRequest{
		XMLNS:             rasNS,
		ReportID:          reportID,
		EventsWithContent: true,
		ExcludeViewEvents: true,
		FetchBlob:         false,
	}

	var resp getReportEventsResponse
	if err := c.call(ctx, c.reportURL, "IReport/GetReportEvents", req, &resp); err != nil {
		return nil, fmt.Errorf("GetReportEvents: %w", err)
	}

	events := make([]ReportEvent, 0, len(resp.Events))
	for _, row := range resp.Events {
		events = append(events, ReportEvent{
			Type:           row.Type,
			EventTime:      row.EventTime.Time,
			Workstation:    row.Workstation,
			AdditionalInfo: row.AdditionalInfo,
			AccountID:      row.Account.ID,
			AccountName:    row.Account.Name,
		})
	}
	return events, nil
}

func (c *Client) call(ctx context.Context, endpoint, action string, payload, out any) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	body, err := buildEnvelope(payload, session)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type",
		fmt.Sprintf(`application/soap+xml; charset=utf-8; action="%s/%s"`, rasNS, action))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.SOAPRequestDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SOAPRequestsTotal.WithLabelValues(action, "transport_error").Inc()
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		metrics.SOAPRequestsTotal.WithLabelValues(action, "read_error").Inc()
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env responseEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		metrics.SOAPRequestsTotal.WithLabelValues(action, "decode_error").Inc()
		return fmt.Errorf("failed to decode envelope (HTTP %d): %w", resp.StatusCode, err)
	}

	// The session header may be refreshed on any response, not just SignIn.
	if env.Header.AccountSession != "" {
		c.mu.Lock()
		c.session = env.Header.AccountSession
		c.mu.Unlock()
	}

	if env.Body.Fault != nil {
		metrics.SOAPRequestsTotal.WithLabelValues(action, "fault").Inc()
		return env.Body.Fault
	}
	if resp.StatusCode != http.StatusOK {
		metrics.SOAPRequestsTotal.WithLabelValues(action, "http_error").Inc()
		return fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	if out != nil {
		if err := xml.Unmarshal(env.Body.InnerXML, out); err != nil {
			metrics.SOAPRequestsTotal.WithLabelValues(action, "decode_error").Inc()
			return fmt.Errorf("failed to decode %s response: %w", action, err)
		}
	}

	metrics.SOAPRequestsTotal.WithLabelValues(action, "ok").Inc()
	return nil
}
