package page

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertdesk/internal/config"
	"alertdesk/internal/dom"
	"alertdesk/internal/guard"
	"alertdesk/internal/invalidate"
	"alertdesk/internal/loop"
	"alertdesk/internal/notify"
)

type harness struct {
	doc      *dom.Document
	rt       *Runtime
	notified *notify.Recorder
	srv      *httptest.Server
}

func fixturePage(t *testing.T) *dom.Document {
	t.Helper()
	doc, err := Load(context.Background(), filepath.Join("testdata", "alert_page.html"), nil)
	require.NoError(t, err)
	return doc
}

func bindHarness(t *testing.T, doc *dom.Document, cfg *config.Config) *harness {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		_, _ = w.Write([]byte("<div>refreshed " + r.PostForm.Get("cid") + "</div>"))
	}))
	t.Cleanup(srv.Close)

	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.Invalidate.URL = srv.URL

	lp := loop.New(0)
	t.Cleanup(lp.Close)

	rec := &notify.Recorder{}
	rt, err := Bind(context.Background(), doc, cfg, Deps{
		Loop:     lp,
		Client:   invalidate.NewHTTPClient(srv.URL, srv.Client()),
		Notifier: rec,
	})
	require.NoError(t, err)
	return &harness{doc: doc, rt: rt, notified: rec, srv: srv}
}

func visible(t *testing.T, doc *dom.Document, id string) bool {
	t.Helper()
	el, err := doc.ByID(id)
	require.NoError(t, err)
	v, err := el.Visible()
	require.NoError(t, err)
	return v
}

func TestBindDiscoversBehaviors(t *testing.T) {
	h := bindHarness(t, fixturePage(t), nil)

	want := Summary{
		Triggers: []TriggerInfo{
			{CacheID: "42", TargetID: "blurb-42", State: "idle", Last: "idle"},
			{CacheID: "7", TargetID: "news-7", State: "idle", Last: "idle"},
		},
		Toggles: []ToggleInfo{
			{Source: "#id_category", Target: "#other-div", Match: "Other", Origin: "markup", Visible: false},
		},
		Form: &FormInfo{Form: "#alert-form", Autocomplete: true, State: "ready"},
	}
	if diff := cmp.Diff(want, h.rt.Summary()); diff != "" {
		t.Errorf("Summary() mismatch (-want +got):\n%s", diff)
	}

	// Toggles are evaluated at bind time.
	assert.False(t, visible(t, h.doc, "other-div"))
}

func TestBindSkipsBrokenTriggers(t *testing.T) {
	doc := fixturePage(t)
	container, err := doc.ByID("alert-container")
	require.NoError(t, err)
	inner, err := container.InnerHTML()
	require.NoError(t, err)
	require.NoError(t, container.SetInnerHTML(inner+
		`<a class="clear-cache" data-cid="9" data-target="missing"></a>`+
		`<a class="clear-cache" data-target="blurb-42"></a>`))

	h := bindHarness(t, doc, nil)
	assert.Len(t, h.rt.Triggers(), 2)
	warnings := h.rt.Warnings()
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], `"missing"`)
	assert.Contains(t, warnings[1], "data-cid")
}

func TestBindWithoutEndpoint(t *testing.T) {
	lp := loop.New(0)
	defer lp.Close()

	rt, err := Bind(context.Background(), fixturePage(t), config.DefaultConfig(), Deps{Loop: lp})
	require.NoError(t, err)
	assert.Empty(t, rt.Triggers())
	require.Len(t, rt.Warnings(), 1)
	assert.Contains(t, rt.Warnings()[0], "no endpoint")
	assert.NotNil(t, rt.Guard())
}

func TestBindBuildsClientFromConfig(t *testing.T) {
	lp := loop.New(0)
	defer lp.Close()

	cfg := config.DefaultConfig()
	cfg.Invalidate.URL = "http://127.0.0.1:1/clear/"
	cfg.Invalidate.Timeout = "2s"
	rt, err := Bind(context.Background(), fixturePage(t), cfg, Deps{Loop: lp})
	require.NoError(t, err)
	assert.Len(t, rt.Triggers(), 2)

	cfg.Invalidate.Timeout = "later"
	_, err = Bind(context.Background(), fixturePage(t), cfg, Deps{Loop: lp})
	assert.Error(t, err)
}

func TestBindRejectsUnknownPolicy(t *testing.T) {
	lp := loop.New(0)
	defer lp.Close()

	cfg := config.DefaultConfig()
	cfg.Invalidate.URL = "http://127.0.0.1:1/clear/"
	cfg.Invalidate.Policy = "cancle"
	_, err := Bind(context.Background(), fixturePage(t), cfg, Deps{Loop: lp})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"cancle"`)
}

func TestBindRequiresLoop(t *testing.T) {
	_, err := Bind(context.Background(), fixturePage(t), nil, Deps{})
	assert.Error(t, err)
}

func TestActivateCIDRefreshesRegion(t *testing.T) {
	h := bindHarness(t, fixturePage(t), nil)
	ctx := context.Background()

	ev, err := h.rt.ActivateCID(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ev.DefaultPrevented())

	qctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, h.rt.Quiesce(qctx))

	region, err := h.doc.ByID("blurb-42")
	require.NoError(t, err)
	got, err := region.InnerHTML()
	require.NoError(t, err)
	assert.Equal(t, "<div>refreshed 42</div>", got)

	news, _ := h.doc.ByID("news-7")
	untouched, _ := news.InnerHTML()
	assert.Equal(t, "<p>old news</p>", untouched)

	sent := h.notified.All()
	require.Len(t, sent, 1)
	assert.Equal(t, "Clear", sent[0].Body)

	_, err = h.rt.ActivateCID(ctx, "404")
	assert.ErrorIs(t, err, ErrUnbound)
}

func TestChangeDrivesToggle(t *testing.T) {
	h := bindHarness(t, fixturePage(t), nil)
	ctx := context.Background()

	_, err := h.rt.SetValue(ctx, "#id_category", "Other")
	require.NoError(t, err)
	assert.True(t, visible(t, h.doc, "other-div"))
	assert.True(t, h.rt.Summary().Toggles[0].Visible)

	_, err = h.rt.SetValue(ctx, "#id_category", "Academic")
	require.NoError(t, err)
	assert.False(t, visible(t, h.doc, "other-div"))

	notes, err := h.doc.ByID("id_notes")
	require.NoError(t, err)
	_, err = h.rt.Change(ctx, notes)
	assert.ErrorIs(t, err, ErrUnbound)
}

func TestConfiguredTogglesAreDeduplicated(t *testing.T) {
	doc := fixturePage(t)
	cfg := config.DefaultConfig()
	cfg.Page.Toggles = []config.ToggleConfig{
		{Source: "#id_category", Match: "Other", Target: "#other-div"},
		{Source: "#id_category", Match: "Academic", Target: "#news-7"},
		{Source: "#nope", Match: "x", Target: "#other-div"},
	}
	h := bindHarness(t, doc, cfg)

	toggles := h.rt.Summary().Toggles
	require.Len(t, toggles, 2)
	assert.Equal(t, "config", toggles[0].Origin)
	assert.Equal(t, "#news-7", toggles[1].Target)
	assert.True(t, toggles[1].Visible)
	require.Len(t, h.rt.Warnings(), 1)
	assert.Contains(t, h.rt.Warnings()[0], "#nope")
}

func TestConflictingToggleIsReported(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Page.Toggles = []config.ToggleConfig{
		{Source: "#id_category", Match: "Academic", Target: "#other-div"},
	}
	h := bindHarness(t, fixturePage(t), cfg)

	toggles := h.rt.Summary().Toggles
	require.Len(t, toggles, 1)
	assert.Equal(t, "config", toggles[0].Origin)
	assert.Equal(t, "Academic", toggles[0].Match)
	assert.True(t, visible(t, h.doc, "other-div"))

	warnings := h.rt.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], `markup rule matching "Other" ignored`)
	assert.Contains(t, warnings[0], `"Academic"`)
}

func TestSubmitPreparesForm(t *testing.T) {
	h := bindHarness(t, fixturePage(t), nil)
	ctx := context.Background()

	res, err := h.rt.Submit(ctx)
	require.NoError(t, err)
	assert.True(t, res.Submitted())
	assert.Empty(t, res.Invalid)
	assert.Equal(t, []string{"#id_description"}, res.Guard.Blanked)

	want := []Field{
		{Name: "student", Value: "jdoe@example.edu"},
		{Name: "category", Value: "Academic"},
		{Name: "other", Value: ""},
		{Name: "description", Value: ""},
		{Name: "notes", Value: "<p>hello</p>"},
	}
	if diff := cmp.Diff(want, res.Fields); diff != "" {
		t.Errorf("Fields mismatch (-want +got):\n%s", diff)
	}

	submit, _ := h.doc.ByID("submit-alert")
	disabled, _ := dom.IsDisabled(submit)
	assert.True(t, disabled)

	_, err = h.rt.Submit(ctx)
	assert.ErrorIs(t, err, guard.ErrDuplicateSubmit)
	disabled, _ = dom.IsDisabled(submit)
	assert.True(t, disabled)
}

func TestSubmitRejectedByRequiredField(t *testing.T) {
	for _, reenable := range []bool{false, true} {
		t.Run(map[bool]string{false: "stays-disabled", true: "reenabled"}[reenable], func(t *testing.T) {
			doc := fixturePage(t)
			input, err := doc.ByID("autoComplete")
			require.NoError(t, err)
			require.NoError(t, input.RemoveAttr("data-email"))

			cfg := config.DefaultConfig()
			cfg.Guard.ReenableOnReject = reenable
			h := bindHarness(t, doc, cfg)

			res, err := h.rt.Submit(context.Background())
			require.NoError(t, err)
			assert.False(t, res.Submitted())
			assert.Equal(t, []string{"student"}, res.Invalid)
			assert.Empty(t, res.Fields)

			submit, _ := doc.ByID("submit-alert")
			disabled, _ := dom.IsDisabled(submit)
			if reenable {
				assert.Equal(t, guard.StateReady, h.rt.Guard().State())
				assert.False(t, disabled)
			} else {
				assert.Equal(t, guard.StateRejected, h.rt.Guard().State())
				assert.True(t, disabled)
			}
			assert.Contains(t, h.rt.Guard().RejectReason(), "student")
		})
	}
}

func TestDispatch(t *testing.T) {
	h := bindHarness(t, fixturePage(t), nil)
	ctx := context.Background()

	trigger := h.rt.Triggers()[1].Entry().Trigger
	ev, err := h.rt.Dispatch(ctx, "click", trigger)
	require.NoError(t, err)
	assert.Equal(t, "click", ev.Type)
	require.NoError(t, h.rt.Quiesce(ctx))

	sel, _ := h.doc.ByID("id_category")
	_, err = h.rt.Dispatch(ctx, "change", sel)
	require.NoError(t, err)

	ev, err = h.rt.Dispatch(ctx, "submit", nil)
	require.NoError(t, err)
	assert.Equal(t, "submit", ev.Type)

	_, err = h.rt.Dispatch(ctx, "dblclick", trigger)
	assert.ErrorIs(t, err, ErrUnbound)

	notes, _ := h.doc.ByID("id_notes")
	_, err = h.rt.Dispatch(ctx, "click", notes)
	assert.ErrorIs(t, err, ErrUnbound)
}

func TestBindings(t *testing.T) {
	h := bindHarness(t, fixturePage(t), nil)

	var got []string
	for _, b := range h.rt.Bindings() {
		got = append(got, b.Event+" "+b.Element.Key())
	}
	require.Len(t, got, 4)
	assert.Equal(t, "click", got[0][:5])
	assert.Equal(t, "click", got[1][:5])
	assert.Equal(t, []string{"change #id_category", "submit #alert-form"}, got[2:])
}
