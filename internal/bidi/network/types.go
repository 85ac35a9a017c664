package network

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

// BytesValue is a header or body value, sent either as text or as base64.
type BytesValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func StringBytes(s string) BytesValue { return BytesValue{Type: "string", Value: s} }

func Base64Bytes(b []byte) BytesValue {
	return BytesValue{Type: "base64", Value: base64.StdEncoding.EncodeToString(b)}
}

// Bytes returns the decoded content.
func (b BytesValue) Bytes() ([]byte, error) {
	switch b.Type {
	case "string":
		return []byte(b.Value), nil
	case "base64":
		return base64.StdEncoding.DecodeString(b.Value)
	}
	return nil, &bidi.UnknownVariantTagError{Family: "BytesValue", Tag: b.Type}
}

func (b *BytesValue) UnmarshalJSON(data []byte) error {
	type plain BytesValue
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Type != "string" && p.Type != "base64" {
		return &bidi.UnknownVariantTagError{Family: "BytesValue", Tag: p.Type}
	}
	*b = BytesValue(p)
	return nil
}

type Header struct {
	Name  string     `json:"name"`
	Value BytesValue `json:"value"`
}

type CookieHeader struct {
	Name  string     `json:"name"`
	Value BytesValue `json:"value"`
}

type SetCookieHeader struct {
	Name     string     `json:"name"`
	Value    BytesValue `json:"value"`
	Domain   string     `json:"domain,omitempty"`
	HTTPOnly *bool      `json:"httpOnly,omitempty"`
	Expiry   string     `json:"expiry,omitempty"`
	MaxAge   *int64     `json:"maxAge,omitempty"`
	Path     string     `json:"path,omitempty"`
	SameSite string     `json:"sameSite,omitempty"`
	Secure   *bool      `json:"secure,omitempty"`
}

// URLPattern matches request URLs in an intercept. Use PatternString for a
// literal URL or PatternParts for component matching.
type URLPattern interface {
	json.Marshaler
	urlPattern()
}

type PatternString string

type PatternParts struct {
	Protocol string `json:"protocol,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Port     string `json:"port,omitempty"`
	Pathname string `json:"pathname,omitempty"`
	Search   string `json:"search,omitempty"`
}

func (PatternString) urlPattern() {}
func (PatternParts) urlPattern()  {}

func (p PatternString) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Pattern string `json:"pattern"`
	}{"string", string(p)})
}

func (p PatternParts) MarshalJSON() ([]byte, error) {
	type plain PatternParts
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{"pattern", plain(p)})
}

type AuthCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c AuthCredentials) MarshalJSON() ([]byte, error) {
	type plain AuthCredentials
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{"password", plain(c)})
}

type InterceptPhase string

const (
	PhaseBeforeRequestSent InterceptPhase = "beforeRequestSent"
	PhaseResponseStarted   InterceptPhase = "responseStarted"
	PhaseAuthRequired      InterceptPhase = "authRequired"
)

func (p InterceptPhase) validate(method string) error {
	switch p {
	case PhaseBeforeRequestSent, PhaseResponseStarted, PhaseAuthRequired:
		return nil
	}
	return bidi.InvalidParams(method, "phases", fmt.Sprintf("unsupported phase %q", string(p)))
}

type Initiator struct {
	ColumnNumber *int   `json:"columnNumber,omitempty"`
	LineNumber   *int   `json:"lineNumber,omitempty"`
	Request      string `json:"request,omitempty"`
	Type         string `json:"type"`
}

type FetchTimingInfo struct {
	TimeOrigin    float64 `json:"timeOrigin"`
	RequestTime   float64 `json:"requestTime"`
	RedirectStart float64 `json:"redirectStart"`
	RedirectEnd   float64 `json:"redirectEnd"`
	FetchStart    float64 `json:"fetchStart"`
	DNSStart      float64 `json:"dnsStart"`
	DNSEnd        float64 `json:"dnsEnd"`
	ConnectStart  float64 `json:"connectStart"`
	ConnectEnd    float64 `json:"connectEnd"`
	TLSStart      float64 `json:"tlsStart"`
	RequestStart  float64 `json:"requestStart"`
	ResponseStart float64 `json:"responseStart"`
	ResponseEnd   float64 `json:"responseEnd"`
}

type Cookie struct {
	Name     string     `json:"name"`
	Value    BytesValue `json:"value"`
	Domain   string     `json:"domain"`
	Path     string     `json:"path"`
	Size     int        `json:"size"`
	HTTPOnly bool       `json:"httpOnly"`
	Secure   bool       `json:"secure"`
	SameSite string     `json:"sameSite"`
	Expiry   *int64     `json:"expiry,omitempty"`
}

type RequestData struct {
	Request     bidi.RequestID  `json:"request"`
	URL         string          `json:"url"`
	Method      string          `json:"method"`
	Headers     []Header        `json:"headers"`
	Cookies     []Cookie        `json:"cookies"`
	HeadersSize int             `json:"headersSize"`
	BodySize    *int            `json:"bodySize"`
	Destination string          `json:"destination"`
	Timings     FetchTimingInfo `json:"timings"`
}

type ResponseData struct {
	URL           string   `json:"url"`
	Protocol      string   `json:"protocol"`
	Status        int      `json:"status"`
	StatusText    string   `json:"statusText"`
	FromCache     bool     `json:"fromCache"`
	Headers       []Header `json:"headers"`
	MimeType      string   `json:"mimeType"`
	BytesReceived int64    `json:"bytesReceived"`
	HeadersSize   *int64   `json:"headersSize"`
	BodySize      *int64   `json:"bodySize"`
	Content       struct {
		Size int64 `json:"size"`
	} `json:"content"`
	AuthChallenges []struct {
		Scheme string `json:"scheme"`
		Realm  string `json:"realm"`
	} `json:"authChallenges,omitempty"`
}
