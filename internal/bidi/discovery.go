package bidi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ResolveWebSocketURL turns an endpoint into the BiDi WebSocket URL.
//
// ws:// and wss:// endpoints are returned as-is. For http:// endpoints the
// /json/version document is queried for webSocketDebuggerUrl; when the browser
// does not publish one, the conventional /session path is used.
func ResolveWebSocketURL(ctx context.Context, endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		return endpoint, nil
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported endpoint scheme: %q", u.Scheme)
	}

	versionURL := strings.TrimRight(endpoint, "/") + "/json/version"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build discovery request: %w", err)
	}

	response, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to connect to endpoint: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return sessionURL(u), nil
	}
	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", response.StatusCode)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var versionInfo struct {
		Browser              string `json:"Browser"`
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.Unmarshal(body, &versionInfo); err != nil {
		return "", fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if versionInfo.WebSocketDebuggerURL == "" {
		return sessionURL(u), nil
	}
	return versionInfo.WebSocketDebuggerURL, nil
}

func sessionURL(u *url.URL) string {
	ws := *u
	if u.Scheme == "https" {
		ws.Scheme = "wss"
	} else {
		ws.Scheme = "ws"
	}
	ws.Path = "/session"
	ws.RawQuery = ""
	return ws.String()
}
