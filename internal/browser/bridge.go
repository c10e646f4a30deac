package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"

	"alertdesk/internal/dom"
	"alertdesk/internal/logging"
	"alertdesk/internal/page"
)

const bridgeName = "__alertdeskDispatch"

// Dispatcher receives browser UI events. page.Runtime implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, typ string, target dom.Element) (*dom.Event, error)
}

// markerAttr returns the attribute the page script looks for.
func markerAttr(event string) string { return "data-alertdesk-" + event }

// bridgeJS routes marked clicks, changes and submits to the exposed binding.
// Clicks and submits are always held back in the page: the Go side decides,
// and a submit that was not prevented is replayed with form.submit().
const bridgeJS = `(name) => {
	if (window.__alertdeskBridge) return true;
	window.__alertdeskBridge = true;
	const key = (el) => el.id ? '#' + el.id : '[data-alertdesk-key="' + el.getAttribute('data-alertdesk-key') + '"]';
	const send = (type, el) => window[name]({ type: type, key: key(el) });

	document.addEventListener('click', (ev) => {
		const el = ev.target.closest && ev.target.closest('[data-alertdesk-click]');
		if (!el) return;
		ev.preventDefault();
		send('click', el).catch((e) => console.error('alertdesk click', e));
	}, true);

	document.addEventListener('change', (ev) => {
		const el = ev.target;
		if (!el.hasAttribute || !el.hasAttribute('data-alertdesk-change')) return;
		send('change', el).catch((e) => console.error('alertdesk change', e));
	}, true);

	document.addEventListener('submit', (ev) => {
		const form = ev.target;
		if (!form.hasAttribute || !form.hasAttribute('data-alertdesk-submit')) return;
		ev.preventDefault();
		send('submit', form).then((res) => {
			if (res && !res.prevented) form.submit();
		}).catch((e) => console.error('alertdesk submit', e));
	}, true);
	return true;
}`

// Bridge marks every binding in the page and routes its events to d until
// the returned stop function is called.
func (p *LivePage) Bridge(ctx context.Context, d Dispatcher, bindings []page.Binding) (func() error, error) {
	for _, b := range bindings {
		if err := b.Element.SetAttr(markerAttr(b.Event), "1"); err != nil {
			return nil, fmt.Errorf("mark %s for %s: %w", b.Element.Key(), b.Event, err)
		}
	}

	stop, err := p.page.Expose(bridgeName, func(payload gson.JSON) (interface{}, error) {
		return p.handle(ctx, d, payload)
	})
	if err != nil {
		return nil, fmt.Errorf("expose event bridge: %w", err)
	}

	if _, err := p.page.Context(p.ctx).Evaluate(&rod.EvalOptions{
		JS:           bridgeJS,
		JSArgs:       []interface{}{bridgeName},
		ByValue:      true,
		AwaitPromise: true,
	}); err != nil {
		_ = stop()
		return nil, fmt.Errorf("install event bridge: %w", err)
	}
	logging.Browser("event bridge installed for %d bindings", len(bindings))
	return stop, nil
}

// handle runs one bridged event and tells the page whether it was prevented.
func (p *LivePage) handle(ctx context.Context, d Dispatcher, payload gson.JSON) (interface{}, error) {
	typ := payload.Get("type").Str()
	key := payload.Get("key").Str()

	target, err := p.ByKey(key)
	if err != nil {
		logging.BrowserWarn("bridged %s on unknown element %s: %v", typ, key, err)
		return map[string]interface{}{"prevented": true}, nil
	}

	ev, err := d.Dispatch(ctx, typ, target)
	if err != nil {
		logging.BrowserWarn("bridged %s on %s: %v", typ, key, err)
	}
	prevented := ev == nil || ev.DefaultPrevented()
	logging.BrowserDebug("bridged %s on %s (prevented=%v)", typ, key, prevented)
	return map[string]interface{}{"prevented": prevented}, nil
}
