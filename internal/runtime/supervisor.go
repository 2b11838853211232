package runtime

import (
	"context"
	"sync"
)

type worker struct {
	name   string
	run    func(context.Context) error
	closeF func() error
}

// Supervisor runs a set of named workers as one group. The group comes
// down together: a cancelled signal context or any worker returning, with
// or without an error, stops the rest. The first error wins.
type Supervisor struct {
	mu      sync.Mutex
	workers []worker
	wg      sync.WaitGroup
	errOnce sync.Once
	err     error
	done    context.Context
	cancel  context.CancelFunc
}

func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

func (s *Supervisor) Add(name string, run func(context.Context) error, closeF func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, worker{name: name, run: run, closeF: closeF})
}

func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done, s.cancel = context.WithCancel(ctx)
	for _, w := range s.workers {
		w := w
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := w.run(s.done); err != nil {
				s.errOnce.Do(func() { s.err = err })
			}
			s.cancel()
		}()
	}
	return nil
}

// Wait blocks until the group is shutting down, then closes workers in
// reverse registration order and waits for every run function to return.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		<-ctx.Done()
	} else {
		select {
		case <-ctx.Done():
		case <-done.Done():
		}
	}

	// Close in reverse order.
	for i := len(s.workers) - 1; i >= 0; i-- {
		if s.workers[i].closeF != nil {
			_ = s.workers[i].closeF()
		}
	}
	s.wg.Wait()
	return s.err
}
