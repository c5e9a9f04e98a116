package errors

import "fmt"

// CHError is the structured error type threaded through every ChunkHound
// component. It provides rich context for logging and for rendering the
// {type, message} payload the protocol server returns to callers.
type CHError struct {
	// Kind is the closed taxonomy bucket this error belongs to.
	Kind Kind

	// Message is the human-readable error message.
	Message string

	// Severity controls propagation: fatal errors abort startup, error
	// severity fails only the current unit of work, warnings are logged.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that produced this one.
	Cause error

	// Retryable indicates whether the operation can be retried as-is.
	Retryable bool
}

// Error implements the error interface.
func (e *CHError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CHError) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, &CHError{Kind: ...}) to match by Kind.
func (e *CHError) Is(target error) bool {
	if t, ok := target.(*CHError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithDetail attaches a key-value detail and returns the error for chaining.
func (e *CHError) WithDetail(key, value string) *CHError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a CHError of the given Kind. Severity and retryability default
// from the Kind unless overridden by the caller via direct field access.
func New(kind Kind, message string, cause error) *CHError {
	return &CHError{
		Kind:      kind,
		Message:   message,
		Severity:  defaultSeverity(kind),
		Cause:     cause,
		Retryable: defaultRetryable(kind),
	}
}

// Wrap turns an existing error into a CHError of the given Kind.
func Wrap(kind Kind, err error) *CHError {
	if err == nil {
		return nil
	}
	return New(kind, err.Error(), err)
}

// Config creates a ConfigError.
func Config(message string, cause error) *CHError { return New(KindConfig, message, cause) }

// IO creates an IOError.
func IO(message string, cause error) *CHError { return New(KindIO, message, cause) }

// Parse creates a ParseError.
func Parse(message string, cause error) *CHError { return New(KindParse, message, cause) }

// ParseTimeout creates a ParseTimeout error.
func ParseTimeout(message string, cause error) *CHError { return New(KindParseTimeout, message, cause) }

// Storage creates a StorageError.
func Storage(message string, cause error) *CHError { return New(KindStorage, message, cause) }

// Embed creates an EmbedError.
func Embed(message string, cause error) *CHError { return New(KindEmbed, message, cause) }

// LLM creates an LLMError.
func LLM(message string, cause error) *CHError { return New(KindLLM, message, cause) }

// LLMTimeout creates an LLMTimeout error.
func LLMTimeout(message string, cause error) *CHError { return New(KindLLMTimeout, message, cause) }

// Protocol creates a ProtocolError.
func Protocol(message string, cause error) *CHError { return New(KindProtocol, message, cause) }

// IsRetryable reports whether err is a CHError with Retryable set.
func IsRetryable(err error) bool {
	var ce *CHError
	if as(err, &ce) {
		return ce.Retryable
	}
	return false
}

// IsFatal reports whether err is a CHError with fatal severity.
func IsFatal(err error) bool {
	var ce *CHError
	if as(err, &ce) {
		return ce.Severity == SeverityFatal
	}
	return false
}

// GetKind extracts the Kind from err, or "" if err is not a CHError.
func GetKind(err error) Kind {
	var ce *CHError
	if as(err, &ce) {
		return ce.Kind
	}
	return ""
}

// as is a tiny local errors.As to avoid importing the stdlib package under
// the same name as this package.
func as(err error, target **CHError) bool {
	for err != nil {
		if ce, ok := err.(*CHError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
