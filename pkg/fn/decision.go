package fn

// Decision is a value that is always usable. When Cause is non-nil the value
// is a documented default chosen because the preferred path failed.
type Decision[T any] struct {
	Value T
	Cause error
}

// Decided wraps a value produced by the preferred path.
func Decided[T any](v T) Decision[T] {
	return Decision[T]{Value: v}
}

// Fallback wraps a default value together with the failure that forced it.
func Fallback[T any](v T, cause error) Decision[T] {
	return Decision[T]{Value: v, Cause: cause}
}

// IsFallback reports whether the value is a default.
func (d Decision[T]) IsFallback() bool { return d.Cause != nil }
