package getrf

import "errors"

// releaseStack collects teardown steps while resources are acquired and
// runs them in reverse order.
type releaseStack struct {
	steps []func() error
}

func (s *releaseStack) push(step func() error) {
	s.steps = append(s.steps, step)
}

// unwind runs every step, last pushed first, and joins their errors.
func (s *releaseStack) unwind() error {
	var errs []error
	for i := len(s.steps) - 1; i >= 0; i-- {
		if err := s.steps[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.steps = nil
	return errors.Join(errs...)
}

// disarm forgets every step once ownership moved elsewhere.
func (s *releaseStack) disarm() {
	s.steps = nil
}
