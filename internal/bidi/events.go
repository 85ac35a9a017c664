package bidi

const (
	MethodSessionSubscribe   = "session.subscribe"
	MethodSessionUnsubscribe = "session.unsubscribe"
)

// Event names as they appear in the "method" field of inbound events.
const (
	EventContextCreated      = "browsingContext.contextCreated"
	EventContextDestroyed    = "browsingContext.contextDestroyed"
	EventNavigationStarted   = "browsingContext.navigationStarted"
	EventFragmentNavigated   = "browsingContext.fragmentNavigated"
	EventHistoryUpdated      = "browsingContext.historyUpdated"
	EventDOMContentLoaded    = "browsingContext.domContentLoaded"
	EventLoad                = "browsingContext.load"
	EventDownloadWillBegin   = "browsingContext.downloadWillBegin"
	EventDownloadEnd         = "browsingContext.downloadEnd"
	EventNavigationAborted   = "browsingContext.navigationAborted"
	EventNavigationCommitted = "browsingContext.navigationCommitted"
	EventNavigationFailed    = "browsingContext.navigationFailed"
	EventUserPromptClosed    = "browsingContext.userPromptClosed"
	EventUserPromptOpened    = "browsingContext.userPromptOpened"

	EventAuthRequired      = "network.authRequired"
	EventBeforeRequestSent = "network.beforeRequestSent"
	EventFetchError        = "network.fetchError"
	EventResponseCompleted = "network.responseCompleted"
	EventResponseStarted   = "network.responseStarted"

	EventScriptMessage  = "script.message"
	EventRealmCreated   = "script.realmCreated"
	EventRealmDestroyed = "script.realmDestroyed"

	EventLogEntryAdded = "log.entryAdded"

	EventFileDialogOpened = "input.fileDialogOpened"
)

// Modules that can be subscribed to as a whole.
const (
	ModuleBrowsingContext = "browsingContext"
	ModuleNetwork         = "network"
	ModuleScript          = "script"
	ModuleLog             = "log"
	ModuleInput           = "input"
)
