// Package notify lets code without a live connection (HTTP handlers, the admin tool) hand notifications to the
// live channel.
package notify

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tcriess/terrace-buddy/filter"
	"github.com/tcriess/terrace-buddy/globals"
	"github.com/tcriess/terrace-buddy/persistence"
	"github.com/tcriess/terrace-buddy/types"
)

var (
	ErrDispatchUnavailable = errors.New("live dispatch is not available yet")
	ErrAlreadyAttached     = errors.New("dispatcher is already attached")
)

// Broadcaster delivers a persisted notification to the live connections of a user.
type Broadcaster interface {
	BroadcastNotification(userId string, n *types.Notification) error
}

// Dispatcher is created once at startup and shared by everything that creates notifications. Until a
// Broadcaster is attached, notifications are only persisted.
type Dispatcher struct {
	persister   persistence.Persister
	liveFilter  *filter.NotificationFilter
	broadcaster Broadcaster

	sync.RWMutex
}

// NewDispatcher creates a detached dispatcher. liveFilter may be nil (deliver everything live).
func NewDispatcher(persister persistence.Persister, liveFilter *filter.NotificationFilter) *Dispatcher {
	return &Dispatcher{
		persister:  persister,
		liveFilter: liveFilter,
	}
}

// Attach connects the dispatcher to the live channel. It can only be done once.
func (d *Dispatcher) Attach(b Broadcaster) error {
	d.Lock()
	defer d.Unlock()
	if d.broadcaster != nil {
		return ErrAlreadyAttached
	}
	d.broadcaster = b
	return nil
}

func (d *Dispatcher) Attached() bool {
	d.RLock()
	defer d.RUnlock()
	return d.broadcaster != nil
}

// Dispatch persists n for userId and, if the dispatcher is attached and the live filter accepts it, delivers it
// to the live connections of the user. Only persistence errors are returned, live delivery is best effort.
func (d *Dispatcher) Dispatch(userId string, n *types.Notification) (*types.Notification, error) {
	n.UserId = userId
	err := d.persister.StoreNotification(n)
	if err != nil {
		globals.AppLogger.Error("could not store notification", "user", userId, "type", n.Type, "error", err)
		return nil, fmt.Errorf("could not persist notification: %w", err)
	}
	d.RLock()
	b := d.broadcaster
	d.RUnlock()
	if b == nil {
		globals.AppLogger.Debug("notification not delivered live", "user", userId, "id", n.Id, "error", ErrDispatchUnavailable)
		return n, nil
	}
	ok, err := d.liveFilter.Match(n)
	if err != nil {
		globals.AppLogger.Warn("could not evaluate live filter", "filter", d.liveFilter.String(), "error", err)
		return n, nil
	}
	if !ok {
		globals.AppLogger.Debug("notification filtered from live delivery", "user", userId, "id", n.Id)
		return n, nil
	}
	err = b.BroadcastNotification(userId, n)
	if err != nil {
		globals.AppLogger.Warn("could not deliver notification live", "user", userId, "id", n.Id, "error", err)
	}
	return n, nil
}
