// Package xmpp maintains the connection to the Intelerad PACS chat
// server, mirroring user presence into Postgres and feeding chat
// messages to the echobot.
package xmpp

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	goxmpp "github.com/xmppo/go-xmpp"

	"github.com/Easy-Rad/wally/internal/domain"
	"github.com/Easy-Rad/wally/internal/metrics"
	"github.com/Easy-Rad/wally/internal/platform/correlation"
)

const defaultReconnectDelay = 15 * time.Second

// Intelerad viewer payload namespaces. Messages carrying one of these
// are mirrored back verbatim so the viewer integration keeps working.
var mirroredPayloads = map[string]bool{
	"com.intelerad.viewer.im.extensions.orderContainer2":    true,
	"com.intelerad.viewer.im.extensions.orderContainer":     true,
	"com.intelerad.viewer.im.extensions.phoneRequestAction": true,
}

// Session is the slice of *go-xmpp.Client the pump loop uses; tests
// substitute a scripted fake.
type Session interface {
	Recv() (any, error)
	Send(chat goxmpp.Chat) (int, error)
	SendOrg(org string) (int, error)
	Close() error
}

// Responder produces echobot replies. ok=false means stay silent.
type Responder interface {
	Respond(ctx context.Context, pacs, body string) (reply string, ok bool)
}

// presenceStore is the slice of domain.UserRepository the client writes to.
type presenceStore interface {
	ResetPresence(ctx context.Context) error
	UpdatePresence(ctx context.Context, pacs string, presence domain.Presence) (bool, error)
}

type Config struct {
	JID            string
	Password       string
	Server         string
	Port           int
	ReconnectDelay time.Duration
}

// Client owns the connect/reconnect loop.
type Client struct {
	cfg       Config
	store     presenceStore
	responder Responder
	hub       domain.PresencePublisher
	clock     clockwork.Clock
	dial      func() (Session, error)
}

func NewClient(cfg Config, store presenceStore, responder Responder, hub domain.PresencePublisher, clock clockwork.Clock) *Client {
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	c := &Client{
		cfg:       cfg,
		store:     store,
		responder: responder,
		hub:       hub,
		clock:     clock,
	}
	c.dial = c.dialServer
	return c
}

func (c *Client) dialServer() (Session, error) {
	opts := goxmpp.Options{
		Host:     net.JoinHostPort(c.cfg.Server, strconv.Itoa(c.cfg.Port)),
		User:     c.cfg.JID,
		Password: c.cfg.Password,
		NoTLS:    true,
		// The PACS server presents an internal certificate.
		TLSConfig: &tls.Config{InsecureSkipVerify: true},
		Session:   true,
		Debug:     false,
	}
	return opts.NewClient()
}

// Run connects and pumps stanzas until ctx is cancelled, reconnecting
// after ReconnectDelay on any failure. Before the first connection every
// user is marked Offline so stale presence from a previous run cannot
// linger.
func (c *Client) Run(ctx context.Context) error {
	slog.Info("Setting all users to offline...")
	if err := c.store.ResetPresence(ctx); err != nil {
		return fmt.Errorf("failed to reset presence: %w", err)
	}

	for {
		metrics.XMPPReconnects.Inc()
		slog.Info("XMPP client connecting...")
		sess, err := c.dial()
		if err != nil {
			slog.Error("XMPP connection failed", "error", err)
		} else {
			slog.Info("XMPP client connected and processing.")
			c.pump(ctx, sess)
		}

		if ctx.Err() != nil {
			slog.Info("XMPP loop cancelled, exiting...")
			return nil
		}

		slog.Info("Will attempt to reconnect", "delay", c.cfg.ReconnectDelay)
		select {
		case <-c.clock.After(c.cfg.ReconnectDelay):
		case <-ctx.Done():
			slog.Info("XMPP loop cancelled, exiting...")
			return nil
		}
	}
}

// pump reads stanzas until the session dies. Cancelling ctx closes the
// session, which unblocks Recv.
func (c *Client) pump(ctx context.Context, sess Session) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = sess.Close()
		case <-done:
		}
	}()

	for {
		stanza, err := sess.Recv()
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("XMPP receive failed", "error", err)
			}
			_ = sess.Close()
			return
		}

		sctx := correlation.WithID(ctx, correlation.NewID())
		switch v := stanza.(type) {
		case goxmpp.Presence:
			metrics.XMPPStanzas.WithLabelValues("presence").Inc()
			c.handlePresence(sctx, v)
		case goxmpp.Chat:
			metrics.XMPPStanzas.WithLabelValues("chat").Inc()
			c.handleChat(sctx, sess, v)
		default:
			metrics.XMPPStanzas.WithLabelValues("other").Inc()
		}
	}
}

func (c *Client) handlePresence(ctx context.Context, p goxmpp.Presence) {
	// Only availability stanzas carry presence; subscription requests,
	// probes and errors must not touch the stored state.
	switch p.Type {
	case "", "unavailable":
	default:
		return
	}
	bare := bareJID(p.From)
	if bare == "" || bare == bareJID(c.cfg.JID) {
		return
	}
	pacs := ToPACS(bare)
	presence := domain.PresenceFromShow(p.Type, p.Show)

	changed, err := c.store.UpdatePresence(ctx, pacs, presence)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to update presence", "pacs", pacs, "error", err)
		return
	}
	if !changed {
		return
	}

	slog.InfoContext(ctx, "Presence changed", "pacs", pacs, "presence", presence)
	metrics.PresenceUpdates.WithLabelValues(string(presence)).Inc()
	if c.hub != nil {
		c.hub.PublishPresence(domain.PresenceChange{
			PACS:     pacs,
			Presence: presence,
			At:       c.clock.Now(),
		})
	}
}

func (c *Client) handleChat(ctx context.Context, sess Session, chat goxmpp.Chat) {
	if chat.Type != "chat" {
		return
	}
	bare := bareJID(chat.Remote)
	pacs := ToPACS(bare)
	slog.InfoContext(ctx, "Message received", "pacs", pacs, "body", chat.Text)

	if payload, ok := findPayload(chat.OtherElem); ok {
		if err := c.mirror(sess, bare, chat.Text, payload); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror message", "pacs", pacs, "error", err)
		}
		return
	}

	reply, ok := c.responder.Respond(ctx, pacs, chat.Text)
	if !ok {
		return
	}
	if _, err := sess.Send(goxmpp.Chat{Remote: bare, Type: "chat", Text: reply}); err != nil {
		slog.ErrorContext(ctx, "Failed to send reply", "pacs", pacs, "error", err)
	}
}

func findPayload(elems []goxmpp.XMLElement) (goxmpp.XMLElement, bool) {
	for _, el := range elems {
		if mirroredPayloads[el.XMLName.Space] {
			return el, true
		}
	}
	return goxmpp.XMLElement{}, false
}

// mirror echoes the message body and its Intelerad payload back to the
// sender's bare JID as a raw stanza, since the typed Chat API cannot
// carry foreign elements.
func (c *Client) mirror(sess Session, to, body string, payload goxmpp.XMLElement) error {
	var b strings.Builder
	b.WriteString(`<message type="chat" to="`)
	xmlEscape(&b, to)
	b.WriteString(`"><body>`)
	xmlEscape(&b, body)
	b.WriteString(`</body><`)
	b.WriteString(payload.XMLName.Local)
	b.WriteString(` xmlns="`)
	xmlEscape(&b, payload.XMLName.Space)
	b.WriteString(`">`)
	b.WriteString(payload.InnerXML)
	b.WriteString(`</`)
	b.WriteString(payload.XMLName.Local)
	b.WriteString(`>`)
	b.WriteString(`</message>`)

	_, err := sess.SendOrg(b.String())
	return err
}

func xmlEscape(b *strings.Builder, s string) {
	_ = xml.EscapeText(b, []byte(s))
}
