package browsingcontext

import (
	"encoding/json"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/script"
)

// Locator selects nodes for locateNodes. Implementations: CSSLocator,
// XPathLocator, InnerTextLocator, AccessibilityLocator, ContextLocator.
type Locator interface {
	json.Marshaler
	locator()
}

type CSSLocator struct{ Selector string }

type XPathLocator struct{ Expression string }

type InnerTextLocator struct {
	Value      string
	IgnoreCase bool
	// MatchType is "full" (default) or "partial".
	MatchType string
	MaxDepth  *int
}

type AccessibilityLocator struct {
	Name string
	Role string
}

// ContextLocator locates the container element of a child context.
type ContextLocator struct {
	Context bidi.BrowsingContextID
}

func (CSSLocator) locator()           {}
func (XPathLocator) locator()         {}
func (InnerTextLocator) locator()     {}
func (AccessibilityLocator) locator() {}
func (ContextLocator) locator()       {}

func taggedValue(tag string, value any) ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Value any    `json:"value"`
	}{tag, value})
}

func (l CSSLocator) MarshalJSON() ([]byte, error)   { return taggedValue("css", l.Selector) }
func (l XPathLocator) MarshalJSON() ([]byte, error) { return taggedValue("xpath", l.Expression) }

func (l InnerTextLocator) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type       string `json:"type"`
		Value      string `json:"value"`
		IgnoreCase bool   `json:"ignoreCase,omitempty"`
		MatchType  string `json:"matchType,omitempty"`
		MaxDepth   *int   `json:"maxDepth,omitempty"`
	}{"innerText", l.Value, l.IgnoreCase, l.MatchType, l.MaxDepth})
}

func (l AccessibilityLocator) MarshalJSON() ([]byte, error) {
	return taggedValue("accessibility", struct {
		Name string `json:"name,omitempty"`
		Role string `json:"role,omitempty"`
	}{l.Name, l.Role})
}

func (l ContextLocator) MarshalJSON() ([]byte, error) {
	return taggedValue("context", struct {
		Context bidi.BrowsingContextID `json:"context"`
	}{l.Context})
}

func validateLocator(l Locator) error {
	const method = MethodLocateNodes
	switch l := l.(type) {
	case nil:
		return bidi.InvalidParams(method, "locator", "is required")
	case CSSLocator:
		if l.Selector == "" {
			return bidi.InvalidParams(method, "locator.value", "css selector must not be empty")
		}
	case XPathLocator:
		if l.Expression == "" {
			return bidi.InvalidParams(method, "locator.value", "xpath expression must not be empty")
		}
	case InnerTextLocator:
		if l.Value == "" {
			return bidi.InvalidParams(method, "locator.value", "inner text must not be empty")
		}
		if l.MatchType != "" && l.MatchType != "full" && l.MatchType != "partial" {
			return bidi.InvalidParams(method, "locator.matchType", "must be full or partial")
		}
	case AccessibilityLocator:
		if l.Name == "" && l.Role == "" {
			return bidi.InvalidParams(method, "locator.value", "needs a name or a role")
		}
	case ContextLocator:
		if l.Context.IsZero() {
			return bidi.InvalidParams(method, "locator.value.context", "must not be empty")
		}
	}
	return nil
}

// ClipRectangle restricts a screenshot to a box or to an element.
type ClipRectangle interface {
	json.Marshaler
	clip()
}

type BoxClip struct {
	X, Y, Width, Height float64
}

type ElementClip struct {
	Element script.SharedReference
}

func (BoxClip) clip()     {}
func (ElementClip) clip() {}

func (c BoxClip) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string  `json:"type"`
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}{"box", c.X, c.Y, c.Width, c.Height})
}

func (c ElementClip) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string                 `json:"type"`
		Element script.SharedReference `json:"element"`
	}{"element", c.Element})
}

func validateClip(c ClipRectangle) error {
	switch c := c.(type) {
	case BoxClip:
		if c.Width <= 0 || c.Height <= 0 {
			return bidi.InvalidParams(MethodCaptureScreenshot, "clip", "box dimensions must be positive")
		}
	case ElementClip:
		if c.Element.SharedID.IsZero() {
			return bidi.InvalidParams(MethodCaptureScreenshot, "clip.element.sharedId", "must not be empty")
		}
	}
	return nil
}
