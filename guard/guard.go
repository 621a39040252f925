/*
Package guard serializes mutating operations per (principal, week).

PURPOSE:
  The engine assumes a single caller per operation. Two submissions of the
  same week racing each other would both pass validation against the same
  stored rows; the guard makes the second one fail fast with ErrInFlight
  instead. Nothing queues: the caller is told to retry.

IMPLEMENTATIONS:
  Local: process-wide map, for single-instance deployments and tests
  Redis: SET NX with a TTL, for several API instances sharing one store

USAGE:
  release, err := g.Acquire(ctx, guard.WeekKey(principal, window.Start()))
  if err != nil {
      return err // errors.Is(err, guard.ErrInFlight) -> 409
  }
  defer release()

SEE ALSO:
  - api/handlers.go: Wraps every mutating route
*/
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
)

// ErrInFlight is returned when another operation holds the key.
var ErrInFlight = errors.New("operation already in progress")

// Guard grants exclusive, non-blocking access to a key.
type Guard interface {
	// Acquire returns ErrInFlight if the key is held. release is idempotent.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// WeekKey is the guard key for one principal's week.
func WeekKey(principal generic.PrincipalID, monday generic.Date) string {
	return fmt.Sprintf("%s:%s", principal, monday)
}

// =============================================================================
// LOCAL
// =============================================================================

// Local is an in-process Guard.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ Guard = (*Local)(nil)

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrInFlight, key)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is currently held.
func (l *Local) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}
