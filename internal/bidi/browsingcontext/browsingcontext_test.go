package browsingcontext_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/biditest"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/browsingcontext"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/script"
)

var ctx1 = bidi.Must(bidi.NewBrowsingContextID("ctx-1"))

func TestCreateAndNavigate(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleResult(browsingcontext.MethodCreate, map[string]any{"context": "ctx-1"})
	server.HandleResult(browsingcontext.MethodNavigate, map[string]any{"navigation": "nav-1", "url": "https://example.com/"})

	m := browsingcontext.New(client)
	id, err := m.Create(context.Background(), browsingcontext.CreateParams{Type: browsingcontext.CreateTab})
	require.NoError(t, err)
	assert.Equal(t, ctx1, id)

	result, err := m.Navigate(context.Background(), browsingcontext.NavigateParams{
		Context: id,
		URL:     "https://example.com",
		Wait:    bidi.ReadinessComplete,
	})
	require.NoError(t, err)
	assert.Equal(t, "nav-1", result.Navigation.String())

	cmds := server.Commands()
	assert.JSONEq(t, `{"type":"tab"}`, string(cmds[0].Params))
	assert.JSONEq(t, `{"context":"ctx-1","url":"https://example.com","wait":"complete"}`, string(cmds[1].Params))
}

func TestNavigateToSameDocumentHasNoNavigationID(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleResult(browsingcontext.MethodNavigate, map[string]any{"navigation": nil, "url": "https://example.com/#top"})

	result, err := browsingcontext.New(client).Navigate(context.Background(), browsingcontext.NavigateParams{
		Context: ctx1, URL: "https://example.com/#top",
	})
	require.NoError(t, err)
	assert.True(t, result.Navigation.IsZero())
}

func TestNavigateTimeout(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.Ignore(browsingcontext.MethodNavigate)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := browsingcontext.New(client).Navigate(ctx, browsingcontext.NavigateParams{Context: ctx1, URL: "about:blank"})
	require.ErrorIs(t, err, bidi.ErrCommandTimeout)
	assert.Zero(t, client.PendingCount())
}

func TestValidationHappensBeforeSending(t *testing.T) {
	client, server := biditest.NewClient(t)
	m := browsingcontext.New(client)
	bg := context.Background()

	_, err := m.Create(bg, browsingcontext.CreateParams{Type: "popup"})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)
	_, err = m.Navigate(bg, browsingcontext.NavigateParams{URL: "about:blank"})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)
	_, err = m.Navigate(bg, browsingcontext.NavigateParams{Context: ctx1})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)
	_, err = m.Navigate(bg, browsingcontext.NavigateParams{Context: ctx1, URL: "about:blank", Wait: "eventually"})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)
	assert.ErrorIs(t, m.Activate(bg, bidi.BrowsingContextID{}), bidi.ErrInvalidParams)
	assert.ErrorIs(t, m.SetViewport(bg, browsingcontext.SetViewportParams{}), bidi.ErrInvalidParams)
	assert.ErrorIs(t, m.SetViewport(bg, browsingcontext.SetViewportParams{
		Context:      ctx1,
		UserContexts: []bidi.UserContextID{bidi.DefaultUserContext},
	}), bidi.ErrInvalidParams)
	_, err = m.CaptureScreenshot(bg, browsingcontext.CaptureScreenshotParams{Context: ctx1, Clip: browsingcontext.BoxClip{}})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)
	_, err = m.LocateNodes(bg, browsingcontext.LocateNodesParams{Context: ctx1})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)
	_, err = m.LocateNodes(bg, browsingcontext.LocateNodesParams{Context: ctx1, Locator: browsingcontext.CSSLocator{}})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)
	_, err = m.Print(bg, browsingcontext.PrintParams{})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)
	_, err = m.Print(bg, browsingcontext.PrintParams{Context: ctx1, Orientation: "sideways"})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)
	tiny := 0.05
	_, err = m.Print(bg, browsingcontext.PrintParams{Context: ctx1, Scale: &tiny})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)
	assert.ErrorIs(t, m.TraverseHistory(bg, bidi.BrowsingContextID{}, -1), bidi.ErrInvalidParams)
	assert.ErrorIs(t, m.HandleUserPrompt(bg, browsingcontext.HandleUserPromptParams{}), bidi.ErrInvalidParams)

	assert.Empty(t, server.Commands())
}

func TestGetTree(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleResult(browsingcontext.MethodGetTree, map[string]any{"contexts": []any{
		map[string]any{
			"context": "ctx-1", "url": "https://example.com/", "userContext": "default",
			"clientWindow": "w-1", "originalOpener": nil, "parent": nil,
			"children": []any{
				map[string]any{"context": "frame-1", "url": "about:blank", "userContext": "default", "clientWindow": "w-1", "originalOpener": nil, "children": nil},
			},
		},
	}})

	depth := 1
	tree, err := browsingcontext.New(client).GetTree(context.Background(), browsingcontext.GetTreeParams{MaxDepth: &depth})
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, ctx1, tree[0].Context)
	assert.True(t, tree[0].Parent.IsZero())
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "frame-1", tree[0].Children[0].Context.String())
}

func TestCaptureScreenshot(t *testing.T) {
	client, server := biditest.NewClient(t)
	png := []byte{0x89, 'P', 'N', 'G'}
	server.HandleResult(browsingcontext.MethodCaptureScreenshot, map[string]any{"data": base64.StdEncoding.EncodeToString(png)})

	img, err := browsingcontext.New(client).CaptureScreenshot(context.Background(), browsingcontext.CaptureScreenshotParams{
		Context: ctx1,
		Origin:  browsingcontext.OriginDocument,
		Clip: browsingcontext.ElementClip{Element: script.SharedReference{
			SharedID: bidi.Must(bidi.NewSharedID("node-1")),
		}},
	})
	require.NoError(t, err)
	data, err := img.Bytes()
	require.NoError(t, err)
	assert.Equal(t, png, data)

	assert.JSONEq(t,
		`{"context":"ctx-1","origin":"document","clip":{"type":"element","element":{"sharedId":"node-1"}}}`,
		string(server.Commands()[0].Params))
}

func TestLocateNodes(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.Handle(browsingcontext.MethodLocateNodes, func(params json.RawMessage) (any, error) {
		return json.RawMessage(`{"nodes":[
			{"type":"node","sharedId":"n-1","value":{"nodeType":1,"childNodeCount":0,"localName":"a"}},
			{"type":"node","sharedId":"n-2","value":{"nodeType":1,"childNodeCount":2,"localName":"a"}}
		]}`), nil
	})

	limit := 5
	nodes, err := browsingcontext.New(client).LocateNodes(context.Background(), browsingcontext.LocateNodesParams{
		Context:      ctx1,
		Locator:      browsingcontext.InnerTextLocator{Value: "Sign in", IgnoreCase: true, MatchType: "partial"},
		MaxNodeCount: &limit,
	})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "n-2", nodes[1].SharedID.String())
	assert.Equal(t, 2, nodes[1].Value.ChildNodeCount)

	assert.JSONEq(t, `{
		"context":"ctx-1",
		"locator":{"type":"innerText","value":"Sign in","ignoreCase":true,"matchType":"partial"},
		"maxNodeCount":5
	}`, string(server.Commands()[0].Params))
}

func TestLocatorEncoding(t *testing.T) {
	for _, tt := range []struct {
		locator browsingcontext.Locator
		want    string
	}{
		{browsingcontext.CSSLocator{Selector: "a.nav"}, `{"type":"css","value":"a.nav"}`},
		{browsingcontext.XPathLocator{Expression: "//a"}, `{"type":"xpath","value":"//a"}`},
		{browsingcontext.AccessibilityLocator{Role: "button"}, `{"type":"accessibility","value":{"role":"button"}}`},
		{browsingcontext.ContextLocator{Context: ctx1}, `{"type":"context","value":{"context":"ctx-1"}}`},
	} {
		data, err := json.Marshal(tt.locator)
		require.NoError(t, err)
		assert.JSONEq(t, tt.want, string(data))
	}
}

func TestPrintTraverseAndPromptEncoding(t *testing.T) {
	client, server := biditest.NewClient(t)
	pdf := []byte("%PDF-1.7")
	server.HandleResult(browsingcontext.MethodPrint, map[string]any{"data": base64.StdEncoding.EncodeToString(pdf)})
	server.HandleResult(browsingcontext.MethodTraverseHistory, map[string]any{})
	server.HandleResult(browsingcontext.MethodHandleUserPrompt, map[string]any{})

	m := browsingcontext.New(client)
	bg := context.Background()

	scale, top, width := 1.5, 0.5, 21.0
	img, err := m.Print(bg, browsingcontext.PrintParams{
		Context:     ctx1,
		Background:  true,
		Margin:      &browsingcontext.PrintMargin{Top: &top},
		Orientation: "landscape",
		Page:        &browsingcontext.PrintPage{Width: &width},
		PageRanges:  []any{1, "3-4"},
		Scale:       &scale,
	})
	require.NoError(t, err)
	data, err := img.Bytes()
	require.NoError(t, err)
	assert.Equal(t, pdf, data)

	require.NoError(t, m.TraverseHistory(bg, ctx1, -2))

	accept := false
	require.NoError(t, m.HandleUserPrompt(bg, browsingcontext.HandleUserPromptParams{
		Context:  ctx1,
		Accept:   &accept,
		UserText: "no thanks",
	}))

	cmds := server.Commands()
	require.Len(t, cmds, 3)
	assert.JSONEq(t, `{
		"context":"ctx-1","background":true,"margin":{"top":0.5},"orientation":"landscape",
		"page":{"width":21},"pageRanges":[1,"3-4"],"scale":1.5
	}`, string(cmds[0].Params))
	assert.Equal(t, browsingcontext.MethodTraverseHistory, cmds[1].Method)
	assert.JSONEq(t, `{"context":"ctx-1","delta":-2}`, string(cmds[1].Params))
	assert.Equal(t, browsingcontext.MethodHandleUserPrompt, cmds[2].Method)
	assert.JSONEq(t, `{"context":"ctx-1","accept":false,"userText":"no thanks"}`, string(cmds[2].Params))
}

func TestSetViewportResetSendsNull(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleResult(browsingcontext.MethodSetViewport, map[string]any{})

	require.NoError(t, browsingcontext.New(client).SetViewport(context.Background(), browsingcontext.SetViewportParams{Context: ctx1}))
	assert.JSONEq(t, `{"context":"ctx-1","viewport":null}`, string(server.Commands()[0].Params))
}

func TestNavigationEventsPerContext(t *testing.T) {
	client, server := biditest.NewClient(t)

	loads := make(chan browsingcontext.NavigationInfo, 4)
	browsingcontext.OnNavigation(client.Events(), bidi.EventLoad, ctx1, func(n browsingcontext.NavigationInfo) { loads <- n })

	server.Emit(bidi.EventLoad, map[string]any{"context": "ctx-2", "navigation": "nav-0", "timestamp": 1, "url": "about:blank"})
	server.Emit(bidi.EventLoad, map[string]any{"context": "ctx-1", "navigation": "nav-1", "timestamp": 2, "url": "https://example.com/"})

	select {
	case n := <-loads:
		assert.Equal(t, "nav-1", n.Navigation.String())
		assert.Equal(t, int64(2), n.Timestamp)
	case <-time.After(2 * time.Second):
		t.Fatal("load event not delivered")
	}
}

func TestContextCreatedEvent(t *testing.T) {
	client, server := biditest.NewClient(t)

	created := make(chan browsingcontext.Info, 1)
	browsingcontext.OnContextCreated(client.Events(), func(info browsingcontext.Info) { created <- info })
	server.Emit(bidi.EventContextCreated, map[string]any{
		"context": "ctx-7", "url": "about:blank", "userContext": "default",
		"clientWindow": "w-1", "originalOpener": nil, "children": nil, "parent": nil,
	})

	select {
	case info := <-created:
		assert.Equal(t, "ctx-7", info.Context.String())
		assert.Equal(t, bidi.DefaultUserContext, info.UserContext)
	case <-time.After(2 * time.Second):
		t.Fatal("contextCreated not delivered")
	}
}
