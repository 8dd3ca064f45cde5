// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// PresenceWatcher is the §4.3/§4.6 collaborator that tells the autospawn
// and no-fail logic whether the daemon's well-known bus name currently has
// an owner, and notifies when that changes.
type PresenceWatcher interface {
	// Owned reports whether the watched bus name currently has an
	// owner.
	Owned() bool

	// SetOwnerChangedCallback installs the callback invoked whenever
	// the bus name gains or loses an owner. owned reports the new
	// state.
	SetOwnerChangedCallback(cb func(owned bool))

	// Close stops watching and releases the underlying bus connection.
	Close() error
}

// NewDBusPresenceWatcher connects to the session bus and watches busName
// for `NameOwnerChanged` signals (§4.3 "daemon presence"). It matches the
// [Config.PresenceWatcherFactory] signature.
func NewDBusPresenceWatcher(busName string, logger SLogger) (PresenceWatcher, error) {
	if logger == nil {
		logger = DefaultSLogger()
	}
	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, fmt.Errorf("paconn: dbus: connect to session bus: %w", err)
	}
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("paconn: dbus: authenticate: %w", err)
	}
	if err := conn.Hello(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("paconn: dbus: hello: %w", err)
	}

	w := &dbusPresenceWatcher{
		conn:    conn,
		busName: busName,
		logger:  logger,
		signals: make(chan *dbus.Signal, 8),
	}

	w.owned = w.queryOwnership()

	rule := fmt.Sprintf(
		"type='signal',interface='org.freedesktop.DBus',member='NameOwnerChanged',arg0='%s'",
		busName,
	)
	call := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule)
	if call.Err != nil {
		conn.Close()
		return nil, fmt.Errorf("paconn: dbus: add match: %w", call.Err)
	}

	conn.Signal(w.signals)
	go w.watch()
	return w, nil
}

type dbusPresenceWatcher struct {
	conn    *dbus.Conn
	busName string
	logger  SLogger
	signals chan *dbus.Signal
	owned   bool
	onOwnerChanged func(owned bool)
}

var _ PresenceWatcher = &dbusPresenceWatcher{}

func (w *dbusPresenceWatcher) queryOwnership() bool {
	var owner string
	err := w.conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, w.busName).Store(&owner)
	return err == nil && owner != ""
}

func (w *dbusPresenceWatcher) Owned() bool {
	return w.owned
}

func (w *dbusPresenceWatcher) SetOwnerChangedCallback(cb func(owned bool)) {
	w.onOwnerChanged = cb
}

func (w *dbusPresenceWatcher) Close() error {
	close(w.signals)
	return w.conn.Close()
}

func (w *dbusPresenceWatcher) watch() {
	for sig := range w.signals {
		if sig.Name != "org.freedesktop.DBus.NameOwnerChanged" {
			continue
		}
		if len(sig.Body) != 3 {
			continue
		}
		name, _ := sig.Body[0].(string)
		if name != w.busName {
			continue
		}
		newOwner, _ := sig.Body[2].(string)
		owned := newOwner != ""
		if owned == w.owned {
			continue
		}
		w.owned = owned
		w.logger.Debug("presenceOwnerChanged", slog.String("busName", w.busName), slog.Bool("owned", owned))
		if w.onOwnerChanged != nil {
			w.onOwnerChanged(owned)
		}
	}
}
