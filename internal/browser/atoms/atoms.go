// File: internal/browser/atoms/atoms.go
//
// Package atoms holds the element-scoped JavaScript functions shared by the
// DevTools transports. Each atom is a function declaration invoked with the
// element as `this`. Atoms signal failures by throwing an Error whose message
// starts with one of the markers below, which Classify maps back to a uierr.Kind.
package atoms

import (
	"strings"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/uierr"
)

// Focus modes.
const (
	FocusSelect = "select"
	FocusKeep   = "keep"
)

const (
	MarkStale            = "scalpel-ui:stale-element"
	MarkNotInteractable  = "scalpel-ui:not-interactable"
	MarkInvalidState     = "scalpel-ui:invalid-state"
	MarkClickIntercepted = "scalpel-ui:click-intercepted"
	MarkInvalidSelector  = "scalpel-ui:invalid-selector"
)

// prelude is prepended to every element atom.
const prelude = `
const __fail = (mark, detail) => { throw new Error(detail ? mark + ': ' + detail : mark); };
const __describe = (el) => {
  if (!el || !el.tagName) return String(el);
  let s = el.tagName.toLowerCase();
  if (el.id) s += '#' + el.id;
  if (typeof el.className === 'string' && el.className.trim()) s += '.' + el.className.trim().split(/\s+/).join('.');
  return s;
};
const __visible = (el) => {
  if (!el.getClientRects().length) return false;
  for (let n = el; n && n.nodeType === 1; n = n.parentElement) {
    const s = getComputedStyle(n);
    if (s.display === 'none' || s.opacity === '0') return false;
  }
  const s = getComputedStyle(el);
  if (s.visibility === 'hidden' || s.visibility === 'collapse') return false;
  const r = el.getBoundingClientRect();
  return r.width > 0 && r.height > 0;
};
`

// guard rejects references to nodes that left the document.
const guard = `if (!this || !this.isConnected) __fail('` + MarkStale + `', 'element is no longer attached to the DOM');`

func element(body string) string {
	return "function() {" + prelude + guard + body + "}"
}

// Find resolves (strategy, expression) below `this`, or below the document
// when `this` is not a node. Returns null when nothing matches.
const Find = `function(strategy, expr) {
  const root = (this && this.nodeType) ? this : document;
  if (root !== document && !root.isConnected) {
    throw new Error('` + MarkStale + `: search context is no longer attached to the DOM');
  }
  const links = (match) => {
    for (const a of root.querySelectorAll('a')) {
      const text = (a.innerText || a.textContent || '').trim();
      if (match(text)) return a;
    }
    return null;
  };
  try {
    switch (strategy) {
      case 'xpath': {
        const doc = root.ownerDocument || root;
        return doc.evaluate(expr, root, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
      }
      case 'css': return root.querySelector(expr);
      case 'id': return root.querySelector('#' + CSS.escape(expr));
      case 'name': return root.querySelector('[name="' + CSS.escape(expr) + '"]');
      case 'class name': return root.querySelector('.' + CSS.escape(expr));
      case 'tag name': return root.querySelector(expr);
      case 'link text': return links((t) => t === expr);
      case 'partial link text': return links((t) => t.includes(expr));
    }
  } catch (e) {
    throw new Error('` + MarkInvalidSelector + `: ' + strategy + ' ' + JSON.stringify(expr) + ': ' + e.message);
  }
  throw new Error('` + MarkInvalidSelector + `: unknown strategy ' + strategy);
}`

var (
	IsDisplayed = element(`return __visible(this);`)

	IsEnabled = element(`return !this.matches(':disabled');`)

	// Text is the rendered text, empty for hidden elements.
	Text = element(`
if (!__visible(this)) return '';
return (this.innerText !== undefined ? this.innerText : this.textContent || '').trim();`)

	// ClickPoint scrolls the element into view, hit-tests its centre and
	// returns the viewport coordinates a native click should use.
	ClickPoint = element(`
if (!__visible(this)) __fail('` + MarkNotInteractable + `', __describe(this) + ' is not visible');
this.scrollIntoView({block: 'center', inline: 'center'});
const r = this.getBoundingClientRect();
const x = r.left + r.width / 2, y = r.top + r.height / 2;
const hit = document.elementFromPoint(x, y);
if (!hit) __fail('` + MarkNotInteractable + `', __describe(this) + ' is outside the viewport');
if (hit !== this && !this.contains(hit)) {
  __fail('` + MarkClickIntercepted + `', __describe(this) + ' would receive the click but ' + __describe(hit) + ' is on top');
}
return {x: x, y: y};`)

	// Focus prepares the element for typing. Mode "select" selects the
	// existing content so typed text replaces it. Mode "keep" leaves an
	// existing selection alone when the element already has focus and
	// otherwise puts the caret at the end.
	Focus = element(`
const mode = arguments[0];
if (!__visible(this)) __fail('` + MarkNotInteractable + `', __describe(this) + ' is not visible');
if (this.disabled || this.readOnly) __fail('` + MarkInvalidState + `', __describe(this) + ' is disabled or read-only');
if (document.activeElement !== this) {
  this.focus();
  if (mode !== 'select' && typeof this.setSelectionRange === 'function') {
    try { const n = this.value.length; this.setSelectionRange(n, n); } catch (e) {}
  }
}
if (mode === 'select') {
  if (typeof this.select === 'function') {
    this.select();
  } else if (this.isContentEditable) {
    const range = document.createRange();
    range.selectNodeContents(this);
    const sel = window.getSelection();
    sel.removeAllRanges();
    sel.addRange(range);
  }
}
return document.activeElement === this || this.contains(document.activeElement);`)

	Clear = element(`
if (!__visible(this)) __fail('` + MarkNotInteractable + `', __describe(this) + ' is not visible');
if (this.disabled || this.readOnly) __fail('` + MarkInvalidState + `', __describe(this) + ' is disabled or read-only');
if (this.tagName === 'INPUT' || this.tagName === 'TEXTAREA') {
  this.focus();
  this.value = '';
} else if (this.isContentEditable) {
  this.focus();
  this.innerHTML = '';
} else {
  __fail('` + MarkInvalidState + `', __describe(this) + ' is not editable');
}
this.dispatchEvent(new Event('input', {bubbles: true}));
this.dispatchEvent(new Event('change', {bubbles: true}));
return true;`)

	// Attribute prefers the live property over the markup attribute, so a
	// typed-in value is visible through "value".
	Attribute = element(`
const name = arguments[0];
const lower = name.toLowerCase();
const booleans = ['checked', 'selected', 'disabled', 'readonly', 'required', 'multiple', 'hidden', 'autofocus'];
if (booleans.includes(lower)) {
  const prop = lower === 'readonly' ? this.readOnly : this[lower];
  return (prop === true || this.hasAttribute(name)) ? 'true' : null;
}
if (lower === 'value' && 'value' in this) {
  return this.value == null ? null : String(this.value);
}
if (name in this) {
  const v = this[name];
  if (typeof v === 'string' || typeof v === 'number' || typeof v === 'boolean') return String(v);
}
return this.getAttribute(name);`)

	CSSValue = element(`return getComputedStyle(this).getPropertyValue(arguments[0]);`)

	// Submit fires a cancelable submit event on the owning form and submits
	// it unless a handler prevented that.
	Submit = element(`
const form = this.tagName === 'FORM' ? this : (this.form || this.closest('form'));
if (!form) __fail('` + MarkInvalidState + `', __describe(this) + ' is not inside a form');
const ev = new Event('submit', {bubbles: true, cancelable: true});
if (form.dispatchEvent(ev)) HTMLFormElement.prototype.submit.call(form);
return true;`)
)

// PageSource serializes the current document.
const PageSource = `function() { return document.documentElement ? document.documentElement.outerHTML : ''; }`

// ScriptBody turns a script written as a function body into a declaration.
func ScriptBody(script string) string {
	return "function() {\n" + script + "\n}"
}

// transportStale are DevTools protocol messages seen when an object id
// outlived its execution context.
var transportStale = []string{
	"could not find object with given id",
	"cannot find object",
	"cannot find context with specified id",
	"execution context was destroyed",
	"no node with given id",
	"node with given id does not belong to the document",
	"object reference chain is too long",
	"inspected target navigated or closed",
}

var transportClosed = []string{
	"target closed",
	"session closed",
	"websocket: close",
	"use of closed network connection",
	"connection reset by peer",
	"broken pipe",
	"browser has been closed",
	"use of closed connection",
	"cdp connection closed",
}

// Classify maps an exception or protocol error message to a Kind. fallback
// is returned when nothing matches.
func Classify(msg string, fallback uierr.Kind) uierr.Kind {
	switch {
	case strings.Contains(msg, MarkStale):
		return uierr.KindStaleReference
	case strings.Contains(msg, MarkNotInteractable):
		return uierr.KindNotInteractable
	case strings.Contains(msg, MarkInvalidState):
		return uierr.KindInvalidState
	case strings.Contains(msg, MarkClickIntercepted):
		return uierr.KindClickIntercepted
	case strings.Contains(msg, MarkInvalidSelector):
		return uierr.KindInvalidSelector
	}

	lower := strings.ToLower(msg)
	for _, s := range transportStale {
		if strings.Contains(lower, s) {
			return uierr.KindStaleReference
		}
	}
	for _, s := range transportClosed {
		if strings.Contains(lower, s) {
			return uierr.KindSessionClosed
		}
	}
	return fallback
}

// StripMarker removes a leading marker so messages read naturally.
func StripMarker(msg string) string {
	for _, m := range []string{MarkStale, MarkNotInteractable, MarkInvalidState, MarkClickIntercepted, MarkInvalidSelector} {
		if i := strings.Index(msg, m); i >= 0 {
			rest := strings.TrimPrefix(msg[i+len(m):], ": ")
			if rest == "" {
				return msg
			}
			return rest
		}
	}
	return msg
}
