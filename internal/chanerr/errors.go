// Package chanerr defines the error taxonomy raised by the structural
// analyzer's layers. Kinds are sentinel values so callers can match with
// errors.Is; each is wrapped with contextual detail via fmt.Errorf.
package chanerr

import "errors"

var (
	// ErrBi marks a stroke whose direction is inconsistent with its
	// endpoint fractal types. Raised on mutation; indicates a logic bug
	// and is fatal to the current update.
	ErrBi = errors.New("chanerr: stroke direction/endpoint inconsistency")

	// ErrSegEndValue marks a new segment that violates the
	// start-value-vs-end-value monotonicity invariant for its direction.
	// Recoverable when the segment list is empty (caller may refuse to
	// create the segment and retry from the next stroke); fatal
	// otherwise.
	ErrSegEndValue = errors.New("chanerr: segment endpoint value violates direction invariant")

	// ErrPara marks an unsupported configuration value, e.g. a MACD
	// algorithm not accepted by the current layer. Fatal.
	ErrPara = errors.New("chanerr: unsupported configuration value")

	// ErrCombiner marks an inconsistent inclusion-rule outcome. Should be
	// unreachable; indicates a bug.
	ErrCombiner = errors.New("chanerr: inconsistent candle combine outcome")

	// ErrKlNotMonotonous marks an incoming bar whose time does not
	// strictly exceed the previous bar's time. Fatal; caller must
	// resynchronize its input stream.
	ErrKlNotMonotonous = errors.New("chanerr: bar time is not strictly increasing")

	// ErrEigenFxFull marks a line fed to a feature-sequence tracker whose
	// three slots are already occupied and awaiting a reset. Should be
	// unreachable; indicates a caller bug.
	ErrEigenFxFull = errors.New("chanerr: feature-sequence tracker already has three elements")
)
