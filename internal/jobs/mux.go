package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by stores for an unknown job id.
var ErrNotFound = errors.New("job not found")

// Mux routes jobs to the handler registered for their type.
type Mux struct {
	mu       sync.RWMutex
	handlers map[JobType]JobHandler
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[JobType]JobHandler)}
}

// Handle registers h for t, replacing any previous handler.
func (m *Mux) Handle(t JobType, h JobHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[t] = h
}

// Handles reports whether a handler is registered for t.
func (m *Mux) Handles(t JobType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.handlers[t]
	return ok
}

// Dispatch is a JobHandler that calls the handler registered for job.Type.
func (m *Mux) Dispatch(ctx context.Context, job *Job) error {
	m.mu.RLock()
	h, ok := m.handlers[job.Type]
	m.mu.RUnlock()
	if !ok {
		return Permanent(fmt.Errorf("no handler for job type %q", job.Type))
	}
	return h(ctx, job)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
