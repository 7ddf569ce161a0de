package client

import "strings"

// DefaultCallbackBase is the non-network URL the hosted checkout redirects to.
// An embedded browser intercepts navigation to it to learn the outcome.
const DefaultCallbackBase = "stripe-supabase-payment://checkout"

const (
	callbackSuccess   = "success"
	callbackCancelled = "cancelled"
)

// CallbackResult is the checkout outcome encoded in a callback URL.
type CallbackResult int

const (
	CallbackNone CallbackResult = iota
	CallbackSuccess
	CallbackCancelled
)

func (r CallbackResult) String() string {
	switch r {
	case CallbackSuccess:
		return callbackSuccess
	case CallbackCancelled:
		return callbackCancelled
	}
	return "none"
}

// Callbacks builds and recognises the success and cancel URLs for one base.
type Callbacks struct {
	Base string
}

func (c Callbacks) base() string {
	if c.Base == "" {
		return DefaultCallbackBase
	}
	return c.Base
}

func (c Callbacks) SuccessURL() string   { return c.base() + "?" + callbackSuccess }
func (c Callbacks) CancelledURL() string { return c.base() + "?" + callbackCancelled }

// Classify reports whether rawURL is one of this base's callbacks, and which.
// Navigation that is not a callback should be allowed to proceed.
func (c Callbacks) Classify(rawURL string) (CallbackResult, bool) {
	lower := strings.ToLower(rawURL)
	if !strings.HasPrefix(lower, strings.ToLower(c.base())) {
		return CallbackNone, false
	}
	query := ""
	if _, q, ok := strings.Cut(lower, "?"); ok {
		query = q
	}
	switch {
	case strings.Contains(query, callbackSuccess):
		return CallbackSuccess, true
	case strings.Contains(query, callbackCancelled):
		return CallbackCancelled, true
	}
	return CallbackNone, true
}

// IsCallbackURL reports whether rawURL targets the default callback base.
func IsCallbackURL(rawURL string) bool {
	_, ok := Callbacks{}.Classify(rawURL)
	return ok
}
