package stream

// Stream is a pull-style view over a producer goroutine. Items arrive on C;
// a terminal error, if any, is delivered on the error channel before or
// after C closes.
type Stream[T any] struct {
	C    <-chan T
	errC <-chan error

	curr T
	err  error
}

func New[T any](c <-chan T, errC <-chan error) *Stream[T] {
	return &Stream[T]{
		C:    c,
		errC: errC,
	}
}

// Next advances the stream to the next item.
// It returns false if there are no more items or an error occurred.
func (s *Stream[T]) Next() bool {
	if s.err != nil {
		return false
	}
	select {
	case item, ok := <-s.C:
		if !ok {
			// The producer closes errC on exit, so this receive cannot block for long.
			if err, ok := <-s.errC; ok {
				s.err = err
			}
			return false
		}
		s.curr = item
		return true
	case err, ok := <-s.errC:
		if ok && err != nil {
			s.err = err
			return false
		}
		// errC closed without an error; drain the remaining items.
		item, ok := <-s.C
		if !ok {
			return false
		}
		s.curr = item
		return true
	}
}

// Current returns the current item in the stream.
func (s *Stream[T]) Current() T {
	return s.curr
}

// Err returns the error encountered during streaming, if any.
func (s *Stream[T]) Err() error {
	return s.err
}

// Collect drains the stream and returns every item read before it ended.
func Collect[T any](s *Stream[T]) ([]T, error) {
	var items []T
	for s.Next() {
		items = append(items, s.Current())
	}
	return items, s.Err()
}
