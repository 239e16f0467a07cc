package estimators

import "errors"

var ErrAlreadyTrained = errors.New("model already trained")

// fitted is a one-way Untrained -> Trained slot. The zero value is Untrained.
type fitted[T any] struct {
	model   T
	trained bool
}

func (f *fitted[T]) train(m T) error {
	if f.trained {
		return ErrAlreadyTrained
	}
	f.model, f.trained = m, true
	return nil
}

func (f *fitted[T]) get() (T, bool) {
	return f.model, f.trained
}
