package bidi_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/biditest"
)

type navigateParams struct {
	Context string `json:"context"`
	URL     string `json:"url"`
}

type navigateResult struct {
	Navigation string `json:"navigation"`
	URL        string `json:"url"`
}

func TestSendDecodesSuccess(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleResult("browsingContext.navigate", map[string]string{
		"navigation": "nav-1",
		"url":        "https://example.com/",
	})

	cmd := bidi.NewCommand("browsingContext.navigate", navigateParams{Context: "ctx-1", URL: "https://example.com"})
	result, err := bidi.Send[navigateResult](context.Background(), client, cmd)
	require.NoError(t, err)
	assert.Equal(t, "nav-1", result.Navigation)
	assert.Equal(t, "https://example.com/", result.URL)
	assert.Equal(t, int64(1), cmd.CommandID())

	sent := server.Commands()
	require.Len(t, sent, 1)
	assert.Equal(t, "browsingContext.navigate", sent[0].Method)
	assert.JSONEq(t, `{"context":"ctx-1","url":"https://example.com"}`, string(sent[0].Params))
	assert.Zero(t, client.PendingCount())
}

func TestCommandTimeoutRemovesPendingSlot(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.Ignore("browsingContext.navigate")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	cmd := bidi.NewCommand("browsingContext.navigate", navigateParams{Context: "ctx-1", URL: "about:blank"})
	start := time.Now()
	_, err := client.Do(ctx, cmd)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, bidi.ErrCommandTimeout)
	var timeout *bidi.CommandTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "browsingContext.navigate", timeout.Method)
	assert.Equal(t, cmd.CommandID(), timeout.ID)
	assert.Less(t, elapsed, time.Second)
	assert.False(t, client.Pending(cmd.CommandID()))
	assert.True(t, bidi.IsRetryable(err))
}

func TestDefaultTimeoutAppliesWithoutDeadline(t *testing.T) {
	client, server := biditest.NewClient(t, bidi.WithDefaultTimeout(30*time.Millisecond))
	server.Ignore("session.status")

	_, err := client.Do(context.Background(), bidi.NewCommand("session.status", struct{}{}))
	require.ErrorIs(t, err, bidi.ErrCommandTimeout)
}

func TestLateResponseIsDropped(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.Ignore("script.evaluate")
	server.HandleResult("session.status", map[string]any{"ready": true, "message": ""})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	cmd := bidi.NewCommand("script.evaluate", struct{}{})
	_, err := client.Do(ctx, cmd)
	require.ErrorIs(t, err, bidi.ErrCommandTimeout)

	server.SendJSON(map[string]any{"type": "success", "id": cmd.CommandID(), "result": map[string]any{}})

	// The client keeps working after the orphan response.
	raw, err := client.Do(context.Background(), bidi.NewCommand("session.status", struct{}{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ready":true,"message":""}`, string(raw))
}

func TestErrorEnvelopeReachesOnlyItsCaller(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.Ignore("browsingContext.navigate")

	type outcome struct {
		id  int64
		err error
		raw json.RawMessage
	}
	results := make(chan outcome, 7)
	cmds := make([]*bidi.Command[navigateParams], 7)
	for i := range cmds {
		cmds[i] = bidi.NewCommand("browsingContext.navigate", navigateParams{Context: "ctx", URL: "about:blank"})
		go func(cmd *bidi.Command[navigateParams]) {
			raw, err := client.Do(context.Background(), cmd)
			results <- outcome{id: cmd.CommandID(), err: err, raw: raw}
		}(cmds[i])
	}

	for range cmds {
		_, err := server.Next(time.Second)
		require.NoError(t, err)
	}

	server.SendRaw(`{"id":7,"type":"error","error":"no such context","message":"context ctx not found"}`)

	got := <-results
	require.Equal(t, int64(7), got.id)
	require.ErrorIs(t, got.err, bidi.ErrRemoteCommandFailed)
	var remote *bidi.RemoteError
	require.ErrorAs(t, got.err, &remote)
	assert.Equal(t, "no such context", remote.Code)
	assert.Equal(t, "context ctx not found", remote.Message)
	assert.False(t, bidi.IsRetryable(got.err))

	for id := int64(1); id <= 6; id++ {
		assert.True(t, client.Pending(id), "id %d should still be pending", id)
	}
	assert.False(t, client.Pending(7))

	for id := int64(1); id <= 6; id++ {
		server.SendJSON(map[string]any{"type": "success", "id": id, "result": map[string]any{"navigation": nil, "url": "about:blank"}})
	}
	for id := int64(1); id <= 6; id++ {
		got := <-results
		assert.NoError(t, got.err)
		assert.NotEqual(t, int64(7), got.id)
	}
}

func TestConcurrentSendsGetUniqueIDs(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.Handle("session.status", func(params json.RawMessage) (any, error) {
		return params, nil
	})

	const callers = 64
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int64]bool)
	)
	for i := range callers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			cmd := bidi.NewCommand("session.status", map[string]int{"n": n})
			raw, err := client.Do(context.Background(), cmd)
			if !assert.NoError(t, err) {
				return
			}
			var echoed map[string]int
			if assert.NoError(t, json.Unmarshal(raw, &echoed)) {
				assert.Equal(t, n, echoed["n"], "response must belong to this caller")
			}
			mu.Lock()
			ids[cmd.CommandID()] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Len(t, ids, callers)
	assert.Zero(t, client.PendingCount())
}

func TestCommandCannotBeSentTwice(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleResult("session.status", map[string]any{"ready": true, "message": ""})

	cmd := bidi.NewCommand("session.status", struct{}{})
	_, err := client.Do(context.Background(), cmd)
	require.NoError(t, err)

	_, err = client.Do(context.Background(), cmd)
	require.ErrorIs(t, err, bidi.ErrCommandAlreadySent)
	assert.Len(t, server.Commands(), 1)
}

func TestTransportLossFailsPendingAndClosesSession(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.Ignore("browsingContext.navigate")

	errs := make(chan error, 3)
	for range 3 {
		go func() {
			_, err := client.Do(context.Background(), bidi.NewCommand("browsingContext.navigate", navigateParams{Context: "c", URL: "about:blank"}))
			errs <- err
		}()
	}
	for range 3 {
		_, err := server.Next(time.Second)
		require.NoError(t, err)
	}

	server.Close()

	for range 3 {
		err := <-errs
		assert.ErrorIs(t, err, bidi.ErrTransportClosed)
	}

	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatal("client did not close")
	}
	assert.Equal(t, bidi.StateClosed, client.State())

	_, err := client.Do(context.Background(), bidi.NewCommand("session.status", struct{}{}))
	assert.ErrorIs(t, err, bidi.ErrSessionClosed)
}

func TestCloseRejectsNewSends(t *testing.T) {
	client, _ := biditest.NewClient(t)
	require.NoError(t, client.MarkConnected("session-1"))
	assert.Equal(t, bidi.StateConnected, client.State())
	assert.Equal(t, "session-1", client.SessionID())

	require.NoError(t, client.Close())
	assert.Equal(t, bidi.StateClosed, client.State())

	_, err := client.Do(context.Background(), bidi.NewCommand("session.status", struct{}{}))
	assert.ErrorIs(t, err, bidi.ErrSessionClosed)
	assert.ErrorIs(t, client.MarkConnected("session-2"), bidi.ErrSessionClosed)
}

func TestMalformedSuccessIsReportedAsDecodeError(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleResult("browsingContext.navigate", []int{1, 2})

	_, err := bidi.Send[navigateResult](context.Background(), client,
		bidi.NewCommand("browsingContext.navigate", navigateParams{Context: "c", URL: "u"}))
	require.ErrorIs(t, err, bidi.ErrMalformedResult)
	var decodeErr *bidi.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "browsingContext.navigate", decodeErr.Method)
	assert.ErrorIs(t, err, bidi.ErrRemoteCommandFailed)
	assert.False(t, bidi.IsRetryable(err))
}

func TestExecRequiresObjectResult(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleResult("browsingContext.close", map[string]any{})
	server.HandleResult("browsingContext.activate", "nope")

	require.NoError(t, bidi.Exec(context.Background(), client, bidi.NewCommand("browsingContext.close", struct{}{})))
	err := bidi.Exec(context.Background(), client, bidi.NewCommand("browsingContext.activate", struct{}{}))
	assert.ErrorIs(t, err, bidi.ErrMalformedResult)
}

func TestCanceledContextIsNotATimeout(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.Ignore("session.status")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_, _ = server.Next(time.Second)
		cancel()
	}()

	_, err := client.Do(ctx, bidi.NewCommand("session.status", struct{}{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, bidi.ErrCommandTimeout))
	assert.Zero(t, client.PendingCount())
}

func TestCancelRacingCloseStillFailsCaller(t *testing.T) {
	for range 50 {
		client, server := biditest.NewClient(t)
		server.Ignore("session.status")

		ctx, cancel := context.WithCancel(context.Background())
		errs := make(chan error, 1)
		go func() {
			_, err := client.Do(ctx, bidi.NewCommand("session.status", struct{}{}))
			errs <- err
		}()
		require.Eventually(t, func() bool { return client.PendingCount() == 1 }, time.Second, time.Millisecond)

		cancel()
		require.NoError(t, client.Close())

		select {
		case err := <-errs:
			require.Error(t, err)
			assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, bidi.ErrTransportClosed), err)
		case <-time.After(time.Second):
			t.Fatal("Do did not return after cancel and close")
		}
		assert.Zero(t, client.PendingCount())
	}
}

func TestCloseFailsPendingCommands(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.Ignore("session.status")

	errs := make(chan error, 1)
	go func() {
		_, err := client.Do(context.Background(), bidi.NewCommand("session.status", struct{}{}))
		errs <- err
	}()
	_, err := server.Next(time.Second)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, bidi.ErrTransportClosed)
	case <-time.After(time.Second):
		t.Fatal("pending command was not failed")
	}
}
