// Package browsingcontext issues browsingContext.* commands and decodes the
// browsing context events.
package browsingcontext

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/script"
)

const (
	MethodCreate            = "browsingContext.create"
	MethodNavigate          = "browsingContext.navigate"
	MethodClose             = "browsingContext.close"
	MethodActivate          = "browsingContext.activate"
	MethodReload            = "browsingContext.reload"
	MethodGetTree           = "browsingContext.getTree"
	MethodCaptureScreenshot = "browsingContext.captureScreenshot"
	MethodPrint             = "browsingContext.print"
	MethodSetViewport       = "browsingContext.setViewport"
	MethodTraverseHistory   = "browsingContext.traverseHistory"
	MethodLocateNodes       = "browsingContext.locateNodes"
	MethodHandleUserPrompt  = "browsingContext.handleUserPrompt"
)

type Module struct {
	doer bidi.Doer
}

func New(doer bidi.Doer) *Module {
	return &Module{doer: doer}
}

func requireContext(method string, id bidi.BrowsingContextID) error {
	if id.IsZero() {
		return bidi.InvalidParams(method, "context", "must not be empty")
	}
	return nil
}

type CreateType string

const (
	CreateTab    CreateType = "tab"
	CreateWindow CreateType = "window"
)

type CreateParams struct {
	Type             CreateType             `json:"type"`
	ReferenceContext bidi.BrowsingContextID `json:"referenceContext,omitzero"`
	Background       bool                   `json:"background,omitempty"`
	UserContext      bidi.UserContextID     `json:"userContext,omitzero"`
}

// Create opens a new tab or window and returns its context id.
func (m *Module) Create(ctx context.Context, params CreateParams) (bidi.BrowsingContextID, error) {
	if params.Type != CreateTab && params.Type != CreateWindow {
		return bidi.BrowsingContextID{}, bidi.InvalidParams(MethodCreate, "type", fmt.Sprintf("unsupported value %q", params.Type))
	}
	result, err := bidi.Send[struct {
		Context bidi.BrowsingContextID `json:"context"`
	}](ctx, m.doer, bidi.NewCommand(MethodCreate, params))
	if err != nil {
		return bidi.BrowsingContextID{}, err
	}
	if result.Context.IsZero() {
		return bidi.BrowsingContextID{}, &bidi.DecodeError{Method: MethodCreate, Err: bidi.Malformed("CreateResult", "context", "is missing")}
	}
	return result.Context, nil
}

type NavigateParams struct {
	Context bidi.BrowsingContextID `json:"context"`
	URL     string                 `json:"url"`
	Wait    bidi.ReadinessState    `json:"wait,omitempty"`
}

// NavigateResult carries the navigation id, which is zero for same-document
// navigations that started no navigation.
type NavigateResult struct {
	Navigation bidi.NavigationID `json:"navigation"`
	URL        string            `json:"url"`
}

func (m *Module) Navigate(ctx context.Context, params NavigateParams) (NavigateResult, error) {
	if err := requireContext(MethodNavigate, params.Context); err != nil {
		return NavigateResult{}, err
	}
	if params.URL == "" {
		return NavigateResult{}, bidi.InvalidParams(MethodNavigate, "url", "must not be empty")
	}
	if _, err := url.Parse(params.URL); err != nil {
		return NavigateResult{}, bidi.InvalidParams(MethodNavigate, "url", err.Error())
	}
	if err := params.Wait.Validate(); err != nil {
		return NavigateResult{}, err
	}
	return bidi.Send[NavigateResult](ctx, m.doer, bidi.NewCommand(MethodNavigate, params))
}

type CloseParams struct {
	Context      bidi.BrowsingContextID `json:"context"`
	PromptUnload bool                   `json:"promptUnload,omitempty"`
}

func (m *Module) Close(ctx context.Context, params CloseParams) error {
	if err := requireContext(MethodClose, params.Context); err != nil {
		return err
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodClose, params))
}

func (m *Module) Activate(ctx context.Context, id bidi.BrowsingContextID) error {
	if err := requireContext(MethodActivate, id); err != nil {
		return err
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodActivate, struct {
		Context bidi.BrowsingContextID `json:"context"`
	}{id}))
}

type ReloadParams struct {
	Context     bidi.BrowsingContextID `json:"context"`
	IgnoreCache bool                   `json:"ignoreCache,omitempty"`
	Wait        bidi.ReadinessState    `json:"wait,omitempty"`
}

func (m *Module) Reload(ctx context.Context, params ReloadParams) (NavigateResult, error) {
	if err := requireContext(MethodReload, params.Context); err != nil {
		return NavigateResult{}, err
	}
	if err := params.Wait.Validate(); err != nil {
		return NavigateResult{}, err
	}
	return bidi.Send[NavigateResult](ctx, m.doer, bidi.NewCommand(MethodReload, params))
}

// Info describes a browsing context and, for getTree, its descendants.
type Info struct {
	Children       []Info                 `json:"children"`
	ClientWindow   bidi.ClientWindowID    `json:"clientWindow"`
	Context        bidi.BrowsingContextID `json:"context"`
	OriginalOpener bidi.BrowsingContextID `json:"originalOpener"`
	URL            string                 `json:"url"`
	UserContext    bidi.UserContextID     `json:"userContext"`
	Parent         bidi.BrowsingContextID `json:"parent"`
}

type GetTreeParams struct {
	MaxDepth *int                   `json:"maxDepth,omitempty"`
	Root     bidi.BrowsingContextID `json:"root,omitzero"`
}

func (m *Module) GetTree(ctx context.Context, params GetTreeParams) ([]Info, error) {
	if params.MaxDepth != nil && *params.MaxDepth < 0 {
		return nil, bidi.InvalidParams(MethodGetTree, "maxDepth", "must not be negative")
	}
	result, err := bidi.Send[struct {
		Contexts []Info `json:"contexts"`
	}](ctx, m.doer, bidi.NewCommand(MethodGetTree, params))
	if err != nil {
		return nil, err
	}
	return result.Contexts, nil
}

type ImageFormat struct {
	Type    string   `json:"type"`
	Quality *float64 `json:"quality,omitempty"`
}

type ScreenshotOrigin string

const (
	OriginViewport ScreenshotOrigin = "viewport"
	OriginDocument ScreenshotOrigin = "document"
)

type CaptureScreenshotParams struct {
	Context bidi.BrowsingContextID `json:"context"`
	Origin  ScreenshotOrigin       `json:"origin,omitempty"`
	Format  *ImageFormat           `json:"format,omitempty"`
	Clip    ClipRectangle          `json:"clip,omitempty"`
}

// Image is base64 data returned by captureScreenshot and print.
type Image struct {
	Data string `json:"data"`
}

// Bytes decodes the base64 payload.
func (i Image) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(i.Data)
}

func (m *Module) CaptureScreenshot(ctx context.Context, params CaptureScreenshotParams) (Image, error) {
	if err := requireContext(MethodCaptureScreenshot, params.Context); err != nil {
		return Image{}, err
	}
	switch params.Origin {
	case "", OriginViewport, OriginDocument:
	default:
		return Image{}, bidi.InvalidParams(MethodCaptureScreenshot, "origin", fmt.Sprintf("unsupported value %q", params.Origin))
	}
	if params.Format != nil && params.Format.Quality != nil && (*params.Format.Quality < 0 || *params.Format.Quality > 1) {
		return Image{}, bidi.InvalidParams(MethodCaptureScreenshot, "format.quality", "must be within [0, 1]")
	}
	if err := validateClip(params.Clip); err != nil {
		return Image{}, err
	}
	return bidi.Send[Image](ctx, m.doer, bidi.NewCommand(MethodCaptureScreenshot, params))
}

type PrintMargin struct {
	Bottom *float64 `json:"bottom,omitempty"`
	Left   *float64 `json:"left,omitempty"`
	Right  *float64 `json:"right,omitempty"`
	Top    *float64 `json:"top,omitempty"`
}

type PrintPage struct {
	Height *float64 `json:"height,omitempty"`
	Width  *float64 `json:"width,omitempty"`
}

type PrintParams struct {
	Context     bidi.BrowsingContextID `json:"context"`
	Background  bool                   `json:"background,omitempty"`
	Margin      *PrintMargin           `json:"margin,omitempty"`
	Orientation string                 `json:"orientation,omitempty"`
	Page        *PrintPage             `json:"page,omitempty"`
	PageRanges  []any                  `json:"pageRanges,omitempty"`
	Scale       *float64               `json:"scale,omitempty"`
	ShrinkToFit *bool                  `json:"shrinkToFit,omitempty"`
}

// Print renders the page as a PDF.
func (m *Module) Print(ctx context.Context, params PrintParams) (Image, error) {
	if err := requireContext(MethodPrint, params.Context); err != nil {
		return Image{}, err
	}
	switch params.Orientation {
	case "", "portrait", "landscape":
	default:
		return Image{}, bidi.InvalidParams(MethodPrint, "orientation", fmt.Sprintf("unsupported value %q", params.Orientation))
	}
	if params.Scale != nil && (*params.Scale < 0.1 || *params.Scale > 2) {
		return Image{}, bidi.InvalidParams(MethodPrint, "scale", "must be within [0.1, 2]")
	}
	return bidi.Send[Image](ctx, m.doer, bidi.NewCommand(MethodPrint, params))
}

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SetViewportParams targets either one context or a set of user contexts.
// A nil Viewport resets the viewport to the browser default.
type SetViewportParams struct {
	Context          bidi.BrowsingContextID `json:"context,omitzero"`
	Viewport         *Viewport              `json:"viewport"`
	DevicePixelRatio *float64               `json:"devicePixelRatio,omitempty"`
	UserContexts     []bidi.UserContextID   `json:"userContexts,omitempty"`
}

func (m *Module) SetViewport(ctx context.Context, params SetViewportParams) error {
	if params.Context.IsZero() == (len(params.UserContexts) == 0) {
		return bidi.InvalidParams(MethodSetViewport, "context", "exactly one of context and userContexts is required")
	}
	if v := params.Viewport; v != nil && (v.Width <= 0 || v.Height <= 0) {
		return bidi.InvalidParams(MethodSetViewport, "viewport", "dimensions must be positive")
	}
	if params.DevicePixelRatio != nil && *params.DevicePixelRatio <= 0 {
		return bidi.InvalidParams(MethodSetViewport, "devicePixelRatio", "must be positive")
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodSetViewport, params))
}

// TraverseHistory moves delta entries through the session history.
func (m *Module) TraverseHistory(ctx context.Context, id bidi.BrowsingContextID, delta int) error {
	if err := requireContext(MethodTraverseHistory, id); err != nil {
		return err
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodTraverseHistory, struct {
		Context bidi.BrowsingContextID `json:"context"`
		Delta   int                    `json:"delta"`
	}{id, delta}))
}

type LocateNodesParams struct {
	Context              bidi.BrowsingContextID       `json:"context"`
	Locator              Locator                      `json:"locator"`
	MaxNodeCount         *int                         `json:"maxNodeCount,omitempty"`
	SerializationOptions *script.SerializationOptions `json:"serializationOptions,omitempty"`
	StartNodes           []script.SharedReference     `json:"startNodes,omitempty"`
}

// LocateNodes finds nodes matching a locator.
func (m *Module) LocateNodes(ctx context.Context, params LocateNodesParams) ([]*script.NodeValue, error) {
	if err := requireContext(MethodLocateNodes, params.Context); err != nil {
		return nil, err
	}
	if err := validateLocator(params.Locator); err != nil {
		return nil, err
	}
	if params.MaxNodeCount != nil && *params.MaxNodeCount < 1 {
		return nil, bidi.InvalidParams(MethodLocateNodes, "maxNodeCount", "must be at least 1")
	}
	return bidi.SendDecode(ctx, m.doer, bidi.NewCommand(MethodLocateNodes, params), decodeNodes)
}

func decodeNodes(data json.RawMessage) ([]*script.NodeValue, error) {
	var w struct {
		Nodes []json.RawMessage `json:"nodes"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	values, err := script.DecodeRemoteValues(w.Nodes)
	if err != nil {
		return nil, err
	}
	nodes := make([]*script.NodeValue, 0, len(values))
	for i, v := range values {
		n, ok := v.(*script.NodeValue)
		if !ok {
			return nil, bidi.Malformed("LocateNodesResult", fmt.Sprintf("nodes[%d]", i), "is a "+v.Type())
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

type HandleUserPromptParams struct {
	Context  bidi.BrowsingContextID `json:"context"`
	Accept   *bool                  `json:"accept,omitempty"`
	UserText string                 `json:"userText,omitempty"`
}

func (m *Module) HandleUserPrompt(ctx context.Context, params HandleUserPromptParams) error {
	if err := requireContext(MethodHandleUserPrompt, params.Context); err != nil {
		return err
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodHandleUserPrompt, params))
}
