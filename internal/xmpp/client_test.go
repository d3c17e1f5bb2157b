package xmpp

import (
	"context"
	"encoding/xml"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goxmpp "github.com/xmppo/go-xmpp"

	"github.com/Easy-Rad/wally/internal/domain"
)

type fakeSession struct {
	stanzas  []any
	sent     []goxmpp.Chat
	sentRaw  []string
	closed   bool
	sendErr  error
	position int
}

func (f *fakeSession) Recv() (any, error) {
	if f.position >= len(f.stanzas) {
		return nil, errors.New("connection closed")
	}
	s := f.stanzas[f.position]
	f.position++
	return s, nil
}

func (f *fakeSession) Send(chat goxmpp.Chat) (int, error) {
	f.sent = append(f.sent, chat)
	return 0, f.sendErr
}

func (f *fakeSession) SendOrg(org string) (int, error) {
	f.sentRaw = append(f.sentRaw, org)
	return 0, f.sendErr
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

type fakeStore struct {
	resetCalled bool
	resetErr    error
	updates     []struct {
		pacs     string
		presence domain.Presence
	}
	changed   bool
	updateErr error
}

func (f *fakeStore) ResetPresence(_ context.Context) error {
	f.resetCalled = true
	return f.resetErr
}

func (f *fakeStore) UpdatePresence(_ context.Context, pacs string, presence domain.Presence) (bool, error) {
	f.updates = append(f.updates, struct {
		pacs     string
		presence domain.Presence
	}{pacs, presence})
	return f.changed, f.updateErr
}

type fakeResponder struct {
	calls []string
	reply string
	ok    bool
}

func (f *fakeResponder) Respond(_ context.Context, pacs, body string) (string, bool) {
	f.calls = append(f.calls, pacs+":"+body)
	return f.reply, f.ok
}

type fakeHub struct {
	changes []domain.PresenceChange
}

func (f *fakeHub) PublishPresence(change domain.PresenceChange) {
	f.changes = append(f.changes, change)
}

func newTestClient(store *fakeStore, responder *fakeResponder, hub *fakeHub) *Client {
	cfg := Config{JID: "wally@cdhb", Server: "pacs.example", Port: 5222}
	return NewClient(cfg, store, responder, hub, clockwork.NewFakeClock())
}

func TestPump_PresenceChanged_PublishesToHub(t *testing.T) {
	store := &fakeStore{changed: true}
	hub := &fakeHub{}
	c := newTestClient(store, &fakeResponder{}, hub)

	sess := &fakeSession{stanzas: []any{
		goxmpp.Presence{From: "j|bloggs@cdhb/InteleViewer", Show: "away"},
	}}
	c.pump(context.Background(), sess)

	require.Len(t, store.updates, 1)
	assert.Equal(t, "jBloggs", store.updates[0].pacs)
	assert.Equal(t, domain.PresenceAway, store.updates[0].presence)

	require.Len(t, hub.changes, 1)
	assert.Equal(t, "jBloggs", hub.changes[0].PACS)
	assert.Equal(t, domain.PresenceAway, hub.changes[0].Presence)
}

func TestPump_PresenceUnchanged_StaysSilent(t *testing.T) {
	store := &fakeStore{changed: false}
	hub := &fakeHub{}
	c := newTestClient(store, &fakeResponder{}, hub)

	sess := &fakeSession{stanzas: []any{
		goxmpp.Presence{From: "jbloggs@cdhb", Show: ""},
	}}
	c.pump(context.Background(), sess)

	assert.Len(t, store.updates, 1)
	assert.Empty(t, hub.changes)
}

func TestPump_IgnoresNonAvailabilityPresence(t *testing.T) {
	store := &fakeStore{changed: true}
	hub := &fakeHub{}
	c := newTestClient(store, &fakeResponder{}, hub)

	sess := &fakeSession{stanzas: []any{
		goxmpp.Presence{From: "j|bloggs@cdhb", Type: "subscribe"},
		goxmpp.Presence{From: "j|bloggs@cdhb", Type: "subscribed"},
		goxmpp.Presence{From: "j|bloggs@cdhb", Type: "probe"},
		goxmpp.Presence{From: "j|bloggs@cdhb", Type: "error"},
		goxmpp.Presence{From: "j|bloggs@cdhb", Type: "unavailable"},
	}}
	c.pump(context.Background(), sess)

	// Only the unavailable stanza is an availability update.
	require.Len(t, store.updates, 1)
	assert.Equal(t, domain.PresenceOffline, store.updates[0].presence)
	assert.Len(t, hub.changes, 1)
}

func TestPump_IgnoresOwnPresence(t *testing.T) {
	store := &fakeStore{changed: true}
	c := newTestClient(store, &fakeResponder{}, &fakeHub{})

	sess := &fakeSession{stanzas: []any{
		goxmpp.Presence{From: "wally@cdhb/bot", Show: "dnd"},
	}}
	c.pump(context.Background(), sess)

	assert.Empty(t, store.updates)
}

func TestPump_ChatGetsResponderReply(t *testing.T) {
	responder := &fakeResponder{reply: "Today's roster...", ok: true}
	c := newTestClient(&fakeStore{}, responder, &fakeHub{})

	sess := &fakeSession{stanzas: []any{
		goxmpp.Chat{Remote: "j|bloggs@cdhb/spark", Type: "chat", Text: "roster"},
	}}
	c.pump(context.Background(), sess)

	require.Len(t, responder.calls, 1)
	assert.Equal(t, "jBloggs:roster", responder.calls[0])
	require.Len(t, sess.sent, 1)
	assert.Equal(t, "j|bloggs@cdhb", sess.sent[0].Remote)
	assert.Equal(t, "chat", sess.sent[0].Type)
	assert.Equal(t, "Today's roster...", sess.sent[0].Text)
}

func TestPump_ChatSilentWhenResponderDeclines(t *testing.T) {
	responder := &fakeResponder{ok: false}
	c := newTestClient(&fakeStore{}, responder, &fakeHub{})

	sess := &fakeSession{stanzas: []any{
		goxmpp.Chat{Remote: "jbloggs@cdhb", Type: "chat", Text: "roster"},
	}}
	c.pump(context.Background(), sess)

	assert.Len(t, responder.calls, 1)
	assert.Empty(t, sess.sent)
}

func TestPump_IgnoresNonChatMessages(t *testing.T) {
	responder := &fakeResponder{reply: "x", ok: true}
	c := newTestClient(&fakeStore{}, responder, &fakeHub{})

	sess := &fakeSession{stanzas: []any{
		goxmpp.Chat{Remote: "jbloggs@cdhb", Type: "groupchat", Text: "roster"},
	}}
	c.pump(context.Background(), sess)

	assert.Empty(t, responder.calls)
	assert.Empty(t, sess.sent)
}

func TestPump_MirrorsViewerPayload(t *testing.T) {
	responder := &fakeResponder{reply: "x", ok: true}
	c := newTestClient(&fakeStore{}, responder, &fakeHub{})

	sess := &fakeSession{stanzas: []any{
		goxmpp.Chat{
			Remote: "j|bloggs@cdhb/InteleViewer",
			Type:   "chat",
			Text:   "Please call extension 1234",
			OtherElem: []goxmpp.XMLElement{{
				XMLName:  xml.Name{Space: "com.intelerad.viewer.im.extensions.phoneRequestAction", Local: "phoneRequest"},
				InnerXML: "<extension>1234</extension>",
			}},
		},
	}}
	c.pump(context.Background(), sess)

	// Mirrored messages never reach the responder.
	assert.Empty(t, responder.calls)
	assert.Empty(t, sess.sent)
	require.Len(t, sess.sentRaw, 1)

	raw := sess.sentRaw[0]
	assert.True(t, strings.HasPrefix(raw, `<message type="chat" to="j|bloggs@cdhb">`))
	assert.Contains(t, raw, "<body>Please call extension 1234</body>")
	assert.Contains(t, raw, `<phoneRequest xmlns="com.intelerad.viewer.im.extensions.phoneRequestAction"><extension>1234</extension></phoneRequest>`)
}

// blockingSession blocks in Recv until Close is called, like a live
// connection waiting on the socket.
type blockingSession struct {
	fakeSession
	closedCh  chan struct{}
	closeOnce sync.Once
}

func (b *blockingSession) Recv() (any, error) {
	<-b.closedCh
	return nil, errors.New("use of closed connection")
}

func (b *blockingSession) Close() error {
	b.closeOnce.Do(func() { close(b.closedCh) })
	return nil
}

func TestPump_CancelClosesSession(t *testing.T) {
	c := newTestClient(&fakeStore{}, &fakeResponder{}, &fakeHub{})

	ctx, cancel := context.WithCancel(context.Background())
	sess := &blockingSession{closedCh: make(chan struct{})}

	done := make(chan struct{})
	go func() {
		c.pump(ctx, sess)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not exit after cancellation")
	}
}

func TestPump_ClosesSessionOnReceiveError(t *testing.T) {
	c := newTestClient(&fakeStore{}, &fakeResponder{}, &fakeHub{})

	// The empty script makes the first Recv fail.
	sess := &fakeSession{}
	c.pump(context.Background(), sess)

	assert.True(t, sess.closed)
}

func TestRun_FailedResetAborts(t *testing.T) {
	store := &fakeStore{resetErr: errors.New("db down")}
	c := newTestClient(store, &fakeResponder{}, &fakeHub{})

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, store.resetCalled)
}

func TestRun_ExitsOnCancel(t *testing.T) {
	store := &fakeStore{}
	c := newTestClient(store, &fakeResponder{}, &fakeHub{})
	c.dial = func() (Session, error) { return nil, errors.New("unreachable") }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Run(ctx)
	require.NoError(t, err)
	assert.True(t, store.resetCalled)
}

func TestFindPayload(t *testing.T) {
	other := goxmpp.XMLElement{XMLName: xml.Name{Space: "jabber:x:event", Local: "x"}}
	payload := goxmpp.XMLElement{XMLName: xml.Name{Space: "com.intelerad.viewer.im.extensions.orderContainer2", Local: "orderContainer"}}

	got, ok := findPayload([]goxmpp.XMLElement{other, payload})
	require.True(t, ok)
	assert.Equal(t, payload.XMLName, got.XMLName)

	_, ok = findPayload([]goxmpp.XMLElement{other})
	assert.False(t, ok)
}
