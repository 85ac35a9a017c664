package script

import (
	"encoding/json"
	"fmt"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

// Source is where a script-originated event came from.
type Source struct {
	Realm   bidi.RealmID           `json:"realm"`
	Context bidi.BrowsingContextID `json:"context,omitzero"`
}

// Message is a script.message event, posted through a channel argument.
type Message struct {
	Channel string
	Data    RemoteValue
	Source  Source
}

type RealmDestroyed struct {
	Realm bidi.RealmID `json:"realm"`
}

func decodeMessage(data json.RawMessage) (Message, error) {
	var w struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
		Source  Source          `json:"source"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, err
	}
	if w.Channel == "" {
		return Message{}, bidi.Malformed("script.message", "channel", "is missing")
	}
	value, err := DecodeRemoteValue(w.Data)
	if err != nil {
		return Message{}, fmt.Errorf("decode message data: %w", err)
	}
	return Message{Channel: w.Channel, Data: value, Source: w.Source}, nil
}

// RegisterEvents installs decoders for script.* events.
func RegisterEvents(d *bidi.Dispatcher) {
	d.RegisterDecoder(bidi.EventScriptMessage, bidi.DecodeWith(decodeMessage))
	d.RegisterDecoder(bidi.EventRealmCreated, bidi.DecodeWith(DecodeRealmInfo))
	d.RegisterDecoder(bidi.EventRealmDestroyed, bidi.JSONDecoder[RealmDestroyed]())
}

// OnMessage registers fn for script.message events on channel. An empty
// channel matches every message.
func OnMessage(d *bidi.Dispatcher, channel string, fn func(Message)) bidi.ListenerID {
	RegisterEvents(d)
	return bidi.On(d, bidi.EventScriptMessage, func(m Message) {
		if channel == "" || m.Channel == channel {
			fn(m)
		}
	})
}

func OnRealmCreated(d *bidi.Dispatcher, fn func(RealmInfo)) bidi.ListenerID {
	RegisterEvents(d)
	return bidi.On(d, bidi.EventRealmCreated, fn)
}

func OnRealmDestroyed(d *bidi.Dispatcher, fn func(RealmDestroyed)) bidi.ListenerID {
	RegisterEvents(d)
	return bidi.On(d, bidi.EventRealmDestroyed, fn)
}
