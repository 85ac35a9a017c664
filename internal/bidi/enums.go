package bidi

import "fmt"

// CacheBehavior is the network.setCacheBehavior mode.
type CacheBehavior string

const (
	CacheBehaviorDefault CacheBehavior = "default"
	CacheBehaviorBypass  CacheBehavior = "bypass"
)

func (c CacheBehavior) Validate() error {
	switch c {
	case CacheBehaviorDefault, CacheBehaviorBypass:
		return nil
	}
	return InvalidParams("", "cacheBehavior", fmt.Sprintf("unsupported value %q", string(c)))
}

// ReadinessState controls how long navigation commands wait.
type ReadinessState string

const (
	ReadinessNone        ReadinessState = "none"
	ReadinessInteractive ReadinessState = "interactive"
	ReadinessComplete    ReadinessState = "complete"
)

func (r ReadinessState) Validate() error {
	switch r {
	case "", ReadinessNone, ReadinessInteractive, ReadinessComplete:
		return nil
	}
	return InvalidParams("", "wait", fmt.Sprintf("unsupported value %q", string(r)))
}

// RealmType is the discriminator of script.RealmInfo.
type RealmType string

const (
	RealmWindow          RealmType = "window"
	RealmDedicatedWorker RealmType = "dedicated-worker"
	RealmSharedWorker    RealmType = "shared-worker"
	RealmServiceWorker   RealmType = "service-worker"
	RealmWorker          RealmType = "worker"
	RealmPaintWorklet    RealmType = "paint-worklet"
	RealmAudioWorklet    RealmType = "audio-worklet"
	RealmWorklet         RealmType = "worklet"
)

var realmTypes = map[RealmType]struct{}{
	RealmWindow:          {},
	RealmDedicatedWorker: {},
	RealmSharedWorker:    {},
	RealmServiceWorker:   {},
	RealmWorker:          {},
	RealmPaintWorklet:    {},
	RealmAudioWorklet:    {},
	RealmWorklet:         {},
}

// Known reports whether r is one of the realm types defined by the protocol.
func (r RealmType) Known() bool {
	_, ok := realmTypes[r]
	return ok
}

// ResultOwnership selects whether the remote end keeps a handle for results.
type ResultOwnership string

const (
	OwnershipRoot ResultOwnership = "root"
	OwnershipNone ResultOwnership = "none"
)

func (o ResultOwnership) Validate() error {
	switch o {
	case "", OwnershipRoot, OwnershipNone:
		return nil
	}
	return InvalidParams("", "resultOwnership", fmt.Sprintf("unsupported value %q", string(o)))
}
