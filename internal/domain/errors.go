package domain

import "errors"

// Kind classifies the failures the bot reports back to users.
type Kind int

const (
	KindUnknown Kind = iota
	// KindMalformedRequest is a command with the wrong arguments.
	KindMalformedRequest
	// KindUnregisteredUser is a link request from a user without an affiliate id.
	KindUnregisteredUser
	// KindUnknownPlatform is a catalog entry for a platform without a rewrite
	// rule. It is logged, never returned to callers.
	KindUnknownPlatform
	// KindEmailNotFound is an email that resolves to no affiliate account.
	KindEmailNotFound
	// KindMerchantNotFound is a merchant missing from the catalog.
	KindMerchantNotFound
)

func (k Kind) String() string {
	switch k {
	case KindMalformedRequest:
		return "malformed_request"
	case KindUnregisteredUser:
		return "unregistered_user"
	case KindUnknownPlatform:
		return "unknown_platform"
	case KindEmailNotFound:
		return "email_not_found"
	case KindMerchantNotFound:
		return "merchant_not_found"
	default:
		return "unknown"
	}
}

// Error carries a Kind and a user-facing message. Two Errors match under
// errors.Is when their kinds are equal.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// NewError builds an Error of the given kind.
func NewError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// KindOf returns the Kind of the first Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindUnknown
}

// Message returns the user-facing message of a domain error, or fallback for
// any other error.
func Message(err error, fallback string) string {
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Msg != "" {
		return domainErr.Msg
	}
	return fallback
}

var (
	// ErrNotFound is returned by repositories when no document matches.
	ErrNotFound = errors.New("not found")

	ErrUnregisteredUser = NewError(KindUnregisteredUser, "User is not registered.", nil)
	ErrEmailNotFound    = NewError(KindEmailNotFound, "Email not found.", nil)
	ErrMerchantNotFound = NewError(KindMerchantNotFound, "Merchant not found.", nil)
	ErrMalformedRequest = NewError(KindMalformedRequest, "Invalid command format.", nil)
)
