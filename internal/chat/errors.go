package chat

import "errors"

var (
	// ErrDuplicateID is returned when a message with the same id is already in the conversation.
	ErrDuplicateID = errors.New("duplicate message id")
	// ErrAlreadyStreaming is returned when appending a streaming message while another one streams.
	ErrAlreadyStreaming = errors.New("another message is already streaming")
	// ErrEmptyPrompt is returned when the user text is empty after trimming whitespace.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrEmptyCredential is returned when a blank credential is submitted for selection.
	ErrEmptyCredential = errors.New("credential is empty")
	// ErrSelectionUnavailable is returned when no credential selector is present in this environment.
	ErrSelectionUnavailable = errors.New("credential selection is unavailable")

	// ErrMissingCredential is returned by session factories when no credential is configured.
	ErrMissingCredential = errors.New("credential is not configured")
	// ErrCredentialRejected is wrapped by model providers when the remote service refuses the
	// credential, so the streamer can tell it apart from other transport failures.
	ErrCredentialRejected = errors.New("credential rejected")
)

// ErrorKind classifies failures returned by Streamer.Send.
type ErrorKind string

const (
	// KindTransport means the model service was unreachable or returned an error.
	KindTransport ErrorKind = "transport"
	// KindCredentialInvalid means the model service refused the credential.
	KindCredentialInvalid ErrorKind = "credential_invalid"
)

// Error is the error returned by Streamer.Send. Message is the user facing text, Err the
// underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

var (
	// ErrTransport matches any *Error of kind KindTransport with errors.Is.
	ErrTransport = &Error{Kind: KindTransport}
	// ErrCredentialInvalid matches any *Error of kind KindCredentialInvalid with errors.Is.
	ErrCredentialInvalid = &Error{Kind: KindCredentialInvalid}
)

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a kind-only *Error (such as ErrTransport) of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}
