// Package options implements the generic functional-options helper shared
// by every With... configuration surface in this module (class.BuildOption,
// model.TrainOption, modelio.SaveOption/LoadOption, store.LoadOption): a
// WithXxx constructor returns an Option that validates and applies one
// setting, and Apply runs a slice of them in order, stopping at the first
// rejected argument.
package options

// Option configures a value of type T, returning an error if the supplied
// argument is invalid for T (an out-of-range count, an inverted length
// range, and so on).
type Option[T any] func(T) error

// New wraps a validating configuration function as an Option.
func New[T any](fn func(T) error) Option[T] {
	return Option[T](fn)
}

// NoError wraps a configuration function that cannot fail as an Option.
func NoError[T any](fn func(T)) Option[T] {
	return func(target T) error {
		fn(target)
		return nil
	}
}

// Apply runs opts against target in declaration order, stopping at and
// returning the first error so later options never see a target left
// partially configured by a rejected one.
func Apply[T any](target T, opts ...Option[T]) error {
	for _, opt := range opts {
		if err := opt(target); err != nil {
			return err
		}
	}
	return nil
}
