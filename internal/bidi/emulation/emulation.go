// Package emulation overrides geolocation, locale, timezone, screen
// orientation, scripting and forced colors for contexts or user contexts.
// Every override takes a nil value to restore the default.
package emulation

import (
	"context"
	"fmt"
	"math"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

const (
	MethodSetGeolocationOverride           = "emulation.setGeolocationOverride"
	MethodSetLocaleOverride                = "emulation.setLocaleOverride"
	MethodSetTimezoneOverride              = "emulation.setTimezoneOverride"
	MethodSetScreenOrientationOverride     = "emulation.setScreenOrientationOverride"
	MethodSetScriptingEnabled              = "emulation.setScriptingEnabled"
	MethodSetForcedColorsModeThemeOverride = "emulation.setForcedColorsModeThemeOverride"
)

// Scope names where an override applies: some browsing contexts or some
// user contexts, never both.
type Scope struct {
	Contexts     []bidi.BrowsingContextID `json:"contexts,omitempty"`
	UserContexts []bidi.UserContextID     `json:"userContexts,omitempty"`
}

func ForContexts(ids ...bidi.BrowsingContextID) Scope { return Scope{Contexts: ids} }

func ForUserContexts(ids ...bidi.UserContextID) Scope { return Scope{UserContexts: ids} }

func (s Scope) validate(method string) error {
	switch {
	case len(s.Contexts) > 0 && len(s.UserContexts) > 0:
		return bidi.InvalidParams(method, "contexts", "cannot be combined with userContexts")
	case len(s.Contexts) == 0 && len(s.UserContexts) == 0:
		return bidi.InvalidParams(method, "contexts", "either contexts or userContexts is required")
	}
	for i, c := range s.Contexts {
		if c.IsZero() {
			return bidi.InvalidParams(method, fmt.Sprintf("contexts[%d]", i), "must not be empty")
		}
	}
	for i, u := range s.UserContexts {
		if u.IsZero() {
			return bidi.InvalidParams(method, fmt.Sprintf("userContexts[%d]", i), "must not be empty")
		}
	}
	return nil
}

type Module struct {
	doer bidi.Doer
}

func New(doer bidi.Doer) *Module {
	return &Module{doer: doer}
}

type Coordinates struct {
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Accuracy         *float64 `json:"accuracy,omitempty"`
	Altitude         *float64 `json:"altitude,omitempty"`
	AltitudeAccuracy *float64 `json:"altitudeAccuracy,omitempty"`
	Heading          *float64 `json:"heading,omitempty"`
	Speed            *float64 `json:"speed,omitempty"`
}

func (c Coordinates) validate() error {
	const method = MethodSetGeolocationOverride
	if c.Latitude < -90 || c.Latitude > 90 || math.IsNaN(c.Latitude) {
		return bidi.InvalidParams(method, "coordinates.latitude", "must be within [-90, 90]")
	}
	if c.Longitude < -180 || c.Longitude > 180 || math.IsNaN(c.Longitude) {
		return bidi.InvalidParams(method, "coordinates.longitude", "must be within [-180, 180]")
	}
	if c.Accuracy != nil && *c.Accuracy < 0 {
		return bidi.InvalidParams(method, "coordinates.accuracy", "must not be negative")
	}
	if c.AltitudeAccuracy != nil {
		if c.Altitude == nil {
			return bidi.InvalidParams(method, "coordinates.altitudeAccuracy", "requires altitude")
		}
		if *c.AltitudeAccuracy < 0 {
			return bidi.InvalidParams(method, "coordinates.altitudeAccuracy", "must not be negative")
		}
	}
	if c.Heading != nil && (*c.Heading < 0 || *c.Heading >= 360) {
		return bidi.InvalidParams(method, "coordinates.heading", "must be within [0, 360)")
	}
	if c.Speed != nil && *c.Speed < 0 {
		return bidi.InvalidParams(method, "coordinates.speed", "must not be negative")
	}
	return nil
}

// SetGeolocationOverride reports coords to geolocation APIs, or restores the
// real position when coords is nil.
func (m *Module) SetGeolocationOverride(ctx context.Context, coords *Coordinates, scope Scope) error {
	if coords != nil {
		if err := coords.validate(); err != nil {
			return err
		}
	}
	if err := scope.validate(MethodSetGeolocationOverride); err != nil {
		return err
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodSetGeolocationOverride, struct {
		Coordinates *Coordinates `json:"coordinates"`
		Scope
	}{coords, scope}))
}

// SetGeolocationUnavailable makes geolocation APIs fail with
// POSITION_UNAVAILABLE.
func (m *Module) SetGeolocationUnavailable(ctx context.Context, scope Scope) error {
	if err := scope.validate(MethodSetGeolocationOverride); err != nil {
		return err
	}
	type positionError struct {
		Type string `json:"type"`
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodSetGeolocationOverride, struct {
		Error positionError `json:"error"`
		Scope
	}{positionError{"positionUnavailable"}, scope}))
}

func (m *Module) SetLocaleOverride(ctx context.Context, locale *string, scope Scope) error {
	if locale != nil && *locale == "" {
		return bidi.InvalidParams(MethodSetLocaleOverride, "locale", "must not be empty")
	}
	if err := scope.validate(MethodSetLocaleOverride); err != nil {
		return err
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodSetLocaleOverride, struct {
		Locale *string `json:"locale"`
		Scope
	}{locale, scope}))
}

// SetTimezoneOverride takes an IANA zone name or an offset such as "+02:00".
func (m *Module) SetTimezoneOverride(ctx context.Context, timezone *string, scope Scope) error {
	if timezone != nil && *timezone == "" {
		return bidi.InvalidParams(MethodSetTimezoneOverride, "timezone", "must not be empty")
	}
	if err := scope.validate(MethodSetTimezoneOverride); err != nil {
		return err
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodSetTimezoneOverride, struct {
		Timezone *string `json:"timezone"`
		Scope
	}{timezone, scope}))
}

type ScreenOrientation struct {
	// Natural is "portrait" or "landscape".
	Natural string `json:"natural"`
	// Type is one of portrait-primary, portrait-secondary, landscape-primary,
	// landscape-secondary.
	Type string `json:"type"`
}

func (o ScreenOrientation) validate() error {
	const method = MethodSetScreenOrientationOverride
	if o.Natural != "portrait" && o.Natural != "landscape" {
		return bidi.InvalidParams(method, "screenOrientation.natural", fmt.Sprintf("unsupported value %q", o.Natural))
	}
	switch o.Type {
	case "portrait-primary", "portrait-secondary", "landscape-primary", "landscape-secondary":
		return nil
	}
	return bidi.InvalidParams(method, "screenOrientation.type", fmt.Sprintf("unsupported value %q", o.Type))
}

func (m *Module) SetScreenOrientationOverride(ctx context.Context, orientation *ScreenOrientation, scope Scope) error {
	if orientation != nil {
		if err := orientation.validate(); err != nil {
			return err
		}
	}
	if err := scope.validate(MethodSetScreenOrientationOverride); err != nil {
		return err
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodSetScreenOrientationOverride, struct {
		ScreenOrientation *ScreenOrientation `json:"screenOrientation"`
		Scope
	}{orientation, scope}))
}

// SetScriptingEnabled disables script execution when enabled is false and
// restores it otherwise. Only false is sent on the wire; true is sent as null.
func (m *Module) SetScriptingEnabled(ctx context.Context, enabled bool, scope Scope) error {
	if err := scope.validate(MethodSetScriptingEnabled); err != nil {
		return err
	}
	var value *bool
	if !enabled {
		value = &enabled
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodSetScriptingEnabled, struct {
		Enabled *bool `json:"enabled"`
		Scope
	}{value, scope}))
}

type ColorTheme string

const (
	ThemeLight ColorTheme = "light"
	ThemeDark  ColorTheme = "dark"
)

func (m *Module) SetForcedColorsModeThemeOverride(ctx context.Context, theme *ColorTheme, scope Scope) error {
	if theme != nil && *theme != ThemeLight && *theme != ThemeDark {
		return bidi.InvalidParams(MethodSetForcedColorsModeThemeOverride, "theme", fmt.Sprintf("unsupported value %q", *theme))
	}
	if err := scope.validate(MethodSetForcedColorsModeThemeOverride); err != nil {
		return err
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodSetForcedColorsModeThemeOverride, struct {
		Theme *ColorTheme `json:"theme"`
		Scope
	}{theme, scope}))
}
