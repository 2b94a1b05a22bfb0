// Package recovery turns presentation failures into bounded retry-then-fallback
// decisions and keeps an audit log of every failure it sees.
package recovery

import (
	"github.com/tphakala/toastd/internal/errors"
)

// Kind identifies a class of presentation failure
type Kind string

// Failure kinds raised by the presentation adapter
const (
	KindShaderCompilation Kind = "SHADER_COMPILATION"
	KindWebGLContextLost  Kind = "WEBGL_CONTEXT_LOST"
	KindAnimationFailure  Kind = "ANIMATION_FAILURE"
	KindGestureFailure    Kind = "GESTURE_FAILURE"
	KindSoundFailure      Kind = "SOUND_FAILURE"
)

// KnownKinds lists every failure kind the presentation adapter may report
var KnownKinds = []Kind{
	KindShaderCompilation,
	KindWebGLContextLost,
	KindAnimationFailure,
	KindGestureFailure,
	KindSoundFailure,
}

// Failure is a failure signal reported for one toast
type Failure struct {
	Kind    Kind
	Message string
}

func (f *Failure) Error() string {
	return string(f.Kind) + ": " + f.Message
}

// ErrorCategory implements errors.CategorizedError
func (f *Failure) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryRender
}

// Outcome is the result of one HandleError call
type Outcome string

const (
	// OutcomeUnregistered means no strategy exists for the kind; nothing was attempted.
	OutcomeUnregistered Outcome = "unregistered"
	// OutcomeRecovered means a recover call succeeded.
	OutcomeRecovered Outcome = "recovered"
	// OutcomeFallback means the fallback ran during this call.
	OutcomeFallback Outcome = "fallback"
	// OutcomeExhausted means retries are used up and the fallback already ran or does not exist.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeToastGone means the toast left the store during backoff; the attempt was dropped.
	OutcomeToastGone Outcome = "toast_gone"
	// OutcomeCancelled means the context ended during backoff.
	OutcomeCancelled Outcome = "cancelled"
)
