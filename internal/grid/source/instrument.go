package source

import (
	"context"
	"time"
)

// Recorder receives the outcome of every fetch.
type Recorder interface {
	ObserveFetch(resource string, elapsed time.Duration, err error)
}

type instrumented[R any] struct {
	next     Source[R]
	recorder Recorder
}

// Instrument reports every FetchPage call of next to recorder.
func Instrument[R any](next Source[R], recorder Recorder) Source[R] {
	if recorder == nil {
		return next
	}
	return instrumented[R]{next: next, recorder: recorder}
}

func (s instrumented[R]) FetchPage(ctx context.Context, d Descriptor) (Page[R], error) {
	start := time.Now()
	page, err := s.next.FetchPage(ctx, d)
	s.recorder.ObserveFetch(d.Resource, time.Since(start), err)
	return page, err
}
