// internal/browser/element.go
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/seatwatch/api/schemas"
)

// -- Page scripts --
//
// Every script runs with `this` bound to the element and reports {gone: true}
// when the node has been detached since it was resolved.

const (
	textJS = `function() {
	if (!this.isConnected) return {gone: true};
	return {value: this.innerText || this.textContent || ""};
}`

	attrJS = `function(name) {
	if (!this.isConnected) return {gone: true};
	return {present: this.hasAttribute(name), value: this.getAttribute(name) || ""};
}`

	visibleJS = `function() {
	if (!this.isConnected) return {gone: true};
	const s = window.getComputedStyle(this);
	return {visible: s.display !== "none" && s.visibility !== "hidden" && this.getClientRects().length > 0};
}`

	interactableJS = `function() {
	if (!this.isConnected) return {gone: true};
	const s = window.getComputedStyle(this);
	const r = this.getBoundingClientRect();
	return {ready: !this.disabled && s.display !== "none" && s.visibility !== "hidden" &&
		s.pointerEvents !== "none" && r.width > 0 && r.height > 0};
}`

	clickJS = `function() {
	if (!this.isConnected) return {gone: true};
	this.scrollIntoView({block: "center", inline: "center"});
	this.click();
	return {};
}`
)

type jsResult struct {
	Gone    bool   `json:"gone"`
	Value   string `json:"value"`
	Present bool   `json:"present"`
	Visible bool   `json:"visible"`
	Ready   bool   `json:"ready"`
}

// liveElement is a schemas.Element backed by a DOM node in a chromedp tab.
type liveElement struct {
	tabCtx context.Context
	node   *cdp.Node
}

var _ schemas.Element = (*liveElement)(nil)

func newLiveElement(tabCtx context.Context, n *cdp.Node) *liveElement {
	return &liveElement{tabCtx: tabCtx, node: n}
}

func (e *liveElement) Find(ctx context.Context, selector string) ([]schemas.Element, error) {
	c, cancel := CombineContext(e.tabCtx, ctx)
	defer cancel()

	var nodes []*cdp.Node
	err := chromedp.Run(c, chromedp.Nodes(selector, &nodes,
		chromedp.ByQueryAll, chromedp.FromNode(e.node), chromedp.AtLeast(0)))
	if err != nil {
		return nil, classify(e.tabCtx, "find "+selector, err)
	}
	out := make([]schemas.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, newLiveElement(e.tabCtx, n))
	}
	return out, nil
}

func (e *liveElement) Text(ctx context.Context) (string, error) {
	res, err := e.call(ctx, "text", textJS)
	if err != nil {
		return "", err
	}
	return res.Value, nil
}

func (e *liveElement) Attr(ctx context.Context, name string) (string, bool, error) {
	res, err := e.call(ctx, "attr "+name, attrJS, name)
	if err != nil {
		return "", false, err
	}
	return res.Value, res.Present, nil
}

func (e *liveElement) Visible(ctx context.Context) (bool, error) {
	res, err := e.call(ctx, "visible", visibleJS)
	if err != nil {
		return false, err
	}
	return res.Visible, nil
}

// interactable reports whether the element is enabled, rendered and able to
// receive pointer events.
func (e *liveElement) interactable(ctx context.Context) (bool, error) {
	res, err := e.call(ctx, "interactable", interactableJS)
	if err != nil {
		return false, err
	}
	return res.Ready, nil
}

// clickNative dispatches real mouse events at the element's center.
func (e *liveElement) clickNative(ctx context.Context) error {
	c, cancel := CombineContext(e.tabCtx, ctx)
	defer cancel()
	if err := chromedp.Run(c, chromedp.MouseClickNode(e.node)); err != nil {
		return classify(e.tabCtx, "native click", err)
	}
	return nil
}

// clickScripted calls the element's click() from page script.
func (e *liveElement) clickScripted(ctx context.Context) error {
	_, err := e.call(ctx, "scripted click", clickJS)
	return err
}

func (e *liveElement) String() string {
	n := e.node
	if n == nil {
		return "<nil>"
	}
	desc := strings.ToLower(n.LocalName)
	if desc == "" {
		desc = strings.ToLower(n.NodeName)
	}
	if id := n.AttributeValue("id"); id != "" {
		desc += "#" + id
	}
	for _, c := range strings.Fields(n.AttributeValue("class")) {
		desc += "." + c
	}
	return desc
}

// call resolves the node to a remote object and invokes fn on it.
func (e *liveElement) call(ctx context.Context, op, fn string, args ...interface{}) (jsResult, error) {
	c, cancel := CombineContext(e.tabCtx, ctx)
	defer cancel()

	var res jsResult
	err := chromedp.Run(c, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(e.node.BackendNodeID).Do(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		withObject := func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
			return p.WithObjectID(obj.ObjectID)
		}
		return chromedp.CallFunctionOn(fn, &res, withObject, args...).Do(ctx)
	}))
	if err != nil {
		return jsResult{}, classify(e.tabCtx, op, err)
	}
	if res.Gone {
		return jsResult{}, fmt.Errorf("%s on %s: %w", op, e, schemas.ErrStaleElement)
	}
	return res, nil
}

// asLive unwraps an Element produced by this package.
func asLive(el schemas.Element) (*liveElement, error) {
	live, ok := el.(*liveElement)
	if !ok || live == nil || live.node == nil {
		return nil, fmt.Errorf("element %v does not belong to a browser session", el)
	}
	return live, nil
}
