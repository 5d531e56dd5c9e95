package session

// SignalType is a raw environment signal forwarded by the learner's browser.
type SignalType string

const (
	SignalVisibility SignalType = "visibility"
	SignalCopy       SignalType = "copy"
	SignalPaste      SignalType = "paste"
	SignalCut        SignalType = "cut"
)

// Signal is one environment observation. Hidden is only meaningful for SignalVisibility.
type Signal struct {
	Type   SignalType `json:"type"`
	Hidden bool       `json:"hidden,omitempty"`
}

// SignalHandler consumes a signal and reports whether the default environment action
// (the clipboard operation) must be blocked.
type SignalHandler func(Signal) (blockDefault bool)

// SignalSource delivers integrity signals to one subscriber. Unsubscribe must be safe to
// call more than once.
type SignalSource interface {
	Subscribe(h SignalHandler) error
	Unsubscribe()
}
