package invalidate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"alertdesk/internal/config"
	"alertdesk/internal/dom"
	"alertdesk/internal/loop"
	"alertdesk/internal/notify"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const alertPage = `<html><body>
<a href="/cache/clear/" class="clear-cache" data-cid="42" data-target="blurb-42"><i class="fa fa-refresh"></i></a>
<div id="blurb-42"><p>stale content</p></div>
</body></html>`

const (
	spinning = `<i class="fa fa-refresh fa-spin"></i>`
	idle     = `<i class="fa fa-refresh"></i>`
)

type fixture struct {
	doc      *dom.Document
	entry    Entry
	loop     *loop.Loop
	notified *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	doc, err := dom.ParseString(alertPage)
	require.NoError(t, err)
	trigger, err := doc.QueryOne(".clear-cache")
	require.NoError(t, err)
	target, err := doc.ByID("blurb-42")
	require.NoError(t, err)

	lp := loop.New(0)
	t.Cleanup(lp.Close)
	return &fixture{
		doc:      doc,
		entry:    Entry{CacheID: "42", TargetID: "blurb-42", Target: target, Trigger: trigger},
		loop:     lp,
		notified: &notify.Recorder{},
	}
}

func (f *fixture) controller(t *testing.T, client Client, cfg config.InvalidateConfig) *Controller {
	t.Helper()
	c, err := NewController(f.entry, client, f.loop, f.notified, cfg)
	require.NoError(t, err)
	return c
}

// click activates c on the loop, the way a page click would.
func (f *fixture) click(t *testing.T, c *Controller) *dom.Event {
	t.Helper()
	ev := dom.NewEvent("click", f.entry.Trigger)
	var err error
	require.NoError(t, f.loop.Do(context.Background(), func() {
		err = c.Activate(context.Background(), ev)
	}))
	require.NoError(t, err)
	return ev
}

func (f *fixture) quiesce(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.loop.Quiesce(ctx))
}

func inner(t *testing.T, el dom.Element) string {
	t.Helper()
	s, err := el.InnerHTML()
	require.NoError(t, err)
	return s
}

func TestActivateSuccess(t *testing.T) {
	var requests int32
	cids := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		_ = r.ParseForm()
		cids <- r.PostForm.Get("cid")
		_, _ = w.Write([]byte("<div>OK</div>"))
	}))
	defer srv.Close()

	f := newFixture(t)
	c := f.controller(t, NewHTTPClient(srv.URL, srv.Client()), config.InvalidateConfig{})

	ev := f.click(t, c)
	assert.True(t, ev.DefaultPrevented())
	f.quiesce(t)

	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
	assert.Equal(t, "42", <-cids)
	assert.Equal(t, "<div>OK</div>", inner(t, f.entry.Target))
	assert.Equal(t, idle, inner(t, f.entry.Trigger))
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, StateSucceeded, c.LastOutcome())
	assert.Equal(t, 1, c.Issued())

	sent := f.notified.All()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.LevelSuccess, sent[0].Level)
	assert.Equal(t, "Cache", sent[0].Title)
	assert.Equal(t, "Clear", sent[0].Body)
}

func TestActivateShowsInFlightIndicator(t *testing.T) {
	f := newFixture(t)
	client := newGatedClient()
	c := f.controller(t, client, config.InvalidateConfig{})

	f.click(t, c)
	call := <-client.started
	assert.Equal(t, spinning, inner(t, f.entry.Trigger))
	assert.Equal(t, StateRequesting, c.State())

	call.reply <- reply{body: "<div>OK</div>"}
	f.quiesce(t)
	assert.Equal(t, idle, inner(t, f.entry.Trigger))
}

func TestActivateServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Cache was not cleared."))
	}))
	defer srv.Close()

	f := newFixture(t)
	before := inner(t, f.entry.Target)
	c := f.controller(t, NewHTTPClient(srv.URL, srv.Client()), config.InvalidateConfig{})

	f.click(t, c)
	f.quiesce(t)

	assert.Equal(t, before, inner(t, f.entry.Target))
	assert.Equal(t, spinning, inner(t, f.entry.Trigger), "trigger stays in flight after a failure")
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, StateFailed, c.LastOutcome())

	sent := f.notified.All()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.LevelError, sent[0].Level)
	assert.Equal(t, "Error", sent[0].Title)
	assert.Equal(t, "Cache was not cleared.", sent[0].Body)
}

func TestActivateTransportFailureRestoresWhenConfigured(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := newFixture(t)
	before := inner(t, f.entry.Target)
	c := f.controller(t, NewHTTPClient(url, &http.Client{Timeout: time.Second}), config.InvalidateConfig{RestoreOnFailure: true})

	f.click(t, c)
	f.quiesce(t)

	assert.Equal(t, before, inner(t, f.entry.Target))
	assert.Equal(t, idle, inner(t, f.entry.Trigger))
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, StateFailed, c.LastOutcome())
	require.Len(t, f.notified.All(), 1)
	assert.Equal(t, notify.LevelError, f.notified.All()[0].Level)
}

func TestSequencePolicyDropsStaleResponse(t *testing.T) {
	f := newFixture(t)
	client := newGatedClient()
	c := f.controller(t, client, config.InvalidateConfig{Policy: config.PolicySequence})

	f.click(t, c)
	first := <-client.started
	f.click(t, c)
	second := <-client.started

	second.reply <- reply{body: "<div>new</div>"}
	first.reply <- reply{body: "<div>old</div>"}
	f.quiesce(t)

	assert.Equal(t, "<div>new</div>", inner(t, f.entry.Target))
	assert.Equal(t, 2, c.Issued())
	assert.Len(t, f.notified.All(), 1)
	assert.Equal(t, StateIdle, c.State())
}

func TestSequencePolicyDropsStaleFailure(t *testing.T) {
	f := newFixture(t)
	client := newGatedClient()
	c := f.controller(t, client, config.InvalidateConfig{})

	f.click(t, c)
	first := <-client.started
	f.click(t, c)
	second := <-client.started

	first.reply <- reply{err: &ServerError{Status: 500, Body: "late failure"}}
	second.reply <- reply{body: "<div>new</div>"}
	f.quiesce(t)

	sent := f.notified.All()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.LevelSuccess, sent[0].Level)
	assert.Equal(t, "<div>new</div>", inner(t, f.entry.Target))
}

func TestCancelPolicyCancelsPreviousRequest(t *testing.T) {
	f := newFixture(t)
	client := newGatedClient()
	c := f.controller(t, client, config.InvalidateConfig{Policy: config.PolicyCancelPrevious})

	f.click(t, c)
	first := <-client.started
	f.click(t, c)
	second := <-client.started

	require.Eventually(t, first.cancelled.Load, 2*time.Second, 5*time.Millisecond)

	second.reply <- reply{body: "<div>new</div>"}
	f.quiesce(t)

	assert.Equal(t, "<div>new</div>", inner(t, f.entry.Target))
	sent := f.notified.All()
	require.Len(t, sent, 1, "the cancelled request must not surface an error")
	assert.Equal(t, notify.LevelSuccess, sent[0].Level)
}

func TestLastWinsPolicyAppliesEveryResponse(t *testing.T) {
	f := newFixture(t)
	client := newGatedClient()
	c := f.controller(t, client, config.InvalidateConfig{Policy: config.PolicyLastWins})

	f.click(t, c)
	first := <-client.started
	f.click(t, c)
	second := <-client.started

	second.reply <- reply{body: "<div>new</div>"}
	require.Eventually(t, func() bool {
		s, _ := f.entry.Target.InnerHTML()
		return s == "<div>new</div>"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateRequesting, c.State())

	first.reply <- reply{body: "<div>old</div>"}
	f.quiesce(t)

	assert.Equal(t, "<div>old</div>", inner(t, f.entry.Target))
	assert.Len(t, f.notified.All(), 2)
	assert.Equal(t, StateIdle, c.State())
}

func TestCustomMarkup(t *testing.T) {
	f := newFixture(t)
	client := newGatedClient()
	c := f.controller(t, client, config.InvalidateConfig{InFlightMarkup: "<b>wait</b>", IdleMarkup: "<b>go</b>"})

	f.click(t, c)
	call := <-client.started
	assert.Equal(t, "<b>wait</b>", inner(t, f.entry.Trigger))
	call.reply <- reply{body: "x"}
	f.quiesce(t)
	assert.Equal(t, "<b>go</b>", inner(t, f.entry.Trigger))
}

func TestActivateAfterLoopClosed(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, newGatedClient(), config.InvalidateConfig{})
	f.loop.Close()

	err := c.Activate(context.Background(), dom.NewEvent("click", f.entry.Trigger))
	assert.ErrorIs(t, err, loop.ErrClosed)
	assert.Equal(t, StateFailed, c.State())
}

func TestNewControllerValidates(t *testing.T) {
	f := newFixture(t)
	client := newGatedClient()

	_, err := NewController(Entry{Target: f.entry.Target}, client, f.loop, nil, config.InvalidateConfig{})
	assert.ErrorIs(t, err, ErrNoTrigger)

	_, err = NewController(Entry{Trigger: f.entry.Trigger, TargetID: "gone"}, client, f.loop, nil, config.InvalidateConfig{})
	assert.ErrorIs(t, err, ErrNoTarget)

	_, err = NewController(f.entry, nil, f.loop, nil, config.InvalidateConfig{})
	assert.Error(t, err)

	_, err = NewController(f.entry, client, f.loop, nil, config.InvalidateConfig{Policy: "lastwins"})
	assert.ErrorContains(t, err, `"lastwins"`)

	c, err := NewController(f.entry, client, f.loop, nil, config.InvalidateConfig{})
	require.NoError(t, err)
	assert.Equal(t, "42", c.Entry().CacheID)
	assert.Equal(t, "idle", c.State().String())
}

// gatedClient holds every request until the test replies to it.
type gatedClient struct {
	started chan *call
}

type call struct {
	cid       string
	reply     chan reply
	cancelled atomic.Bool
}

type reply struct {
	body string
	err  error
}

func newGatedClient() *gatedClient {
	return &gatedClient{started: make(chan *call, 8)}
}

func (g *gatedClient) Invalidate(ctx context.Context, cid string) (string, error) {
	c := &call{cid: cid, reply: make(chan reply, 1)}
	g.started <- c
	select {
	case r := <-c.reply:
		return r.body, r.err
	case <-ctx.Done():
		c.cancelled.Store(true)
		return "", ctx.Err()
	}
}
