// Package invalidate implements the cache invalidation workflow: a trigger on
// the page purges one server-side cache entry and the refreshed fragment
// replaces the target region.
package invalidate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"alertdesk/internal/config"
	"alertdesk/internal/dom"
	"alertdesk/internal/logging"
	"alertdesk/internal/loop"
	"alertdesk/internal/notify"
)

var (
	// ErrNoTrigger is returned for an entry without a trigger element.
	ErrNoTrigger = errors.New("invalidation entry has no trigger")
	// ErrNoTarget is returned for an entry whose target region is missing.
	ErrNoTarget = errors.New("invalidation entry has no target region")
)

// State is the lifecycle state of one entry.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateFailed
	StateSucceeded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateFailed:
		return "failed"
	case StateSucceeded:
		return "succeeded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Entry ties a cache key to the region that shows its rendered content.
type Entry struct {
	CacheID  string
	TargetID string
	Target   dom.Element
	Trigger  dom.Element
}

// Controller drives one Entry. Activate and the completions it schedules
// run on the loop; the mutex only makes State and friends safe to read from
// elsewhere.
type Controller struct {
	entry    Entry
	client   Client
	loop     *loop.Loop
	notifier notify.Notifier
	cfg      config.InvalidateConfig

	mu       sync.Mutex
	state    State
	last     State
	seq      uint64
	inFlight int
	issued   int
	cancel   context.CancelFunc
}

// NewController validates entry and fills unset markup from the defaults.
func NewController(entry Entry, client Client, lp *loop.Loop, n notify.Notifier, cfg config.InvalidateConfig) (*Controller, error) {
	if entry.Trigger == nil {
		return nil, ErrNoTrigger
	}
	if entry.Target == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoTarget, entry.TargetID)
	}
	if client == nil || lp == nil {
		return nil, fmt.Errorf("controller for cid %q needs a client and a loop", entry.CacheID)
	}
	if n == nil {
		n = notify.Nop{}
	}
	defaults := config.DefaultInvalidateConfig()
	if cfg.Policy == "" {
		cfg.Policy = defaults.Policy
	}
	if err := config.ValidatePolicy(cfg.Policy); err != nil {
		return nil, fmt.Errorf("controller for cid %q: %w", entry.CacheID, err)
	}
	if cfg.InFlightMarkup == "" {
		cfg.InFlightMarkup = defaults.InFlightMarkup
	}
	if cfg.IdleMarkup == "" {
		cfg.IdleMarkup = defaults.IdleMarkup
	}
	return &Controller{
		entry:    entry,
		client:   client,
		loop:     lp,
		notifier: n,
		cfg:      cfg,
	}, nil
}

// Entry returns the bound entry.
func (c *Controller) Entry() Entry { return c.entry }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastOutcome is StateSucceeded or StateFailed for the most recent applied
// completion, or StateIdle if none has been applied yet.
func (c *Controller) LastOutcome() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Issued counts the requests sent so far.
func (c *Controller) Issued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issued
}

// Activate handles a click on the trigger. It must run on the loop.
// Request errors never come back from here; they end in a notification.
func (c *Controller) Activate(ctx context.Context, ev *dom.Event) error {
	ev.PreventDefault()

	if err := c.entry.Trigger.SetInnerHTML(c.cfg.InFlightMarkup); err != nil {
		logging.InvalidateWarn("cid %s: show in-flight indicator: %v", c.entry.CacheID, err)
	}

	reqCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.cfg.Policy == config.PolicyCancelPrevious && c.cancel != nil {
		c.cancel()
	}
	c.seq++
	seq := c.seq
	c.cancel = cancel
	c.state = StateRequesting
	c.inFlight++
	c.issued++
	c.mu.Unlock()

	rl := logging.WithRequestID(logging.CategoryInvalidate, uuid.NewString()).
		WithField("cid", c.entry.CacheID).
		WithField("seq", seq)
	rl.Debug("requesting invalidation (policy=%s)", c.cfg.Policy)
	timer := logging.StartTimer(logging.CategoryInvalidate, "invalidate cid "+c.entry.CacheID)

	err := c.loop.Spawn(reqCtx, func(wctx context.Context) func() {
		body, err := c.client.Invalidate(wctx, c.entry.CacheID)
		cancel()
		timer.StopWithThreshold(5 * time.Second)
		return func() {
			c.complete(context.WithoutCancel(ctx), rl, seq, body, err)
		}
	})
	if err != nil {
		cancel()
		c.mu.Lock()
		c.inFlight--
		c.state = StateFailed
		c.mu.Unlock()
		return fmt.Errorf("schedule invalidation of cid %s: %w", c.entry.CacheID, err)
	}
	return nil
}

// complete applies one response. It runs on the loop.
func (c *Controller) complete(ctx context.Context, rl *logging.RequestLogger, seq uint64, body string, reqErr error) {
	c.mu.Lock()
	c.inFlight--
	stale := c.cfg.Policy != config.PolicyLastWins && seq != c.seq
	if stale {
		latest := c.seq
		c.mu.Unlock()
		rl.Debug("discarding stale response (latest seq=%d, err=%v)", latest, reqErr)
		return
	}
	if c.cancel != nil && seq == c.seq {
		c.cancel = nil
	}
	c.mu.Unlock()

	if reqErr == nil {
		reqErr = c.apply(body)
	}

	outcome := StateSucceeded
	if reqErr != nil {
		outcome = StateFailed
		rl.Warn("invalidation failed: %v", reqErr)
		c.send(ctx, notify.Error("Error", ErrorPayload(reqErr)))
		if c.cfg.RestoreOnFailure {
			c.restoreTrigger()
		}
	} else {
		rl.Info("region #%s refreshed", c.entry.TargetID)
		c.send(ctx, notify.Success("Cache", "Clear"))
		c.restoreTrigger()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = outcome
	switch {
	case c.inFlight > 0 && c.cfg.Policy == config.PolicyLastWins:
		c.state = StateRequesting
	case outcome == StateFailed && !c.cfg.RestoreOnFailure:
		c.state = StateFailed
	default:
		c.state = StateIdle
	}
}

// apply swaps the refreshed fragment into the target, verbatim.
func (c *Controller) apply(body string) error {
	if err := c.entry.Target.SetInnerHTML(body); err != nil {
		return fmt.Errorf("replace #%s content: %w", c.entry.TargetID, err)
	}
	return nil
}

func (c *Controller) restoreTrigger() {
	if err := c.entry.Trigger.SetInnerHTML(c.cfg.IdleMarkup); err != nil {
		logging.InvalidateWarn("cid %s: restore trigger: %v", c.entry.CacheID, err)
	}
}

func (c *Controller) send(ctx context.Context, n notify.Notification) {
	if err := c.notifier.Notify(ctx, n); err != nil {
		logging.InvalidateError("cid %s: notify: %v", c.entry.CacheID, err)
	}
}
