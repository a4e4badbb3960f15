// Package lock guards a destination key against concurrent writers with a
// lock object stored next to the data.
package lock

import (
	"context"
	"errors"
)

// ErrLocked is returned by Acquire when another owner holds a live lock.
var ErrLocked = errors.New("lock already held")

type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}
