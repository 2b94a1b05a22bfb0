package privacy

// scrubbedError reports a scrubbed message but unwraps to the original,
// so errors.Is and errors.As still see the cause.
type scrubbedError struct {
	cause error
	msg   string
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.cause }

// ScrubError returns err with URLs, addresses and credentials removed from its
// message. Transport errors from net/http embed the full request URL, query
// string included. A nil error stays nil.
func ScrubError(err error) error {
	if err == nil {
		return nil
	}
	return &scrubbedError{cause: err, msg: ScrubMessage(err.Error())}
}
