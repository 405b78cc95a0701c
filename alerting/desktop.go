package alerting

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsDest   = "org.freedesktop.Notifications"
	notificationsPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsNotify = "org.freedesktop.Notifications.Notify"

	appName = "scanguard"
	appIcon = "dialog-warning"
)

// Notifier shows desktop notifications.
type Notifier interface {
	Notify(ctx context.Context, summary, body string, hints map[string]dbus.Variant) error
}

// DBusNotifier sends freedesktop notifications over the session bus.
// The bus connection is established on first use.
type DBusNotifier struct {
	conn     *dbus.Conn
	connLock sync.Mutex
}

// NewDBusNotifier returns a new notifier using the session bus.
func NewDBusNotifier() *DBusNotifier {
	return &DBusNotifier{}
}

func (dn *DBusNotifier) getConn() (*dbus.Conn, error) {
	dn.connLock.Lock()
	defer dn.connLock.Unlock()

	if dn.conn == nil || !dn.conn.Connected() {
		conn, err := dbus.SessionBus()
		if err != nil {
			return nil, fmt.Errorf("dbus: failed to connect to session bus: %w", err)
		}
		dn.conn = conn
	}
	return dn.conn, nil
}

// Notify implements Notifier.
func (dn *DBusNotifier) Notify(ctx context.Context, summary, body string, hints map[string]dbus.Variant) error {
	conn, err := dn.getConn()
	if err != nil {
		return err
	}

	if hints == nil {
		hints = make(map[string]dbus.Variant)
	}

	call := conn.Object(notificationsDest, notificationsPath).CallWithContext(
		ctx,
		notificationsNotify,
		0,
		appName,
		uint32(0), // replaces id
		appIcon,
		summary,
		body,
		[]string{}, // actions
		hints,
		int32(-1), // server default expiry
	)
	if call.Err != nil {
		return fmt.Errorf("dbus: notify failed: %w", call.Err)
	}
	return nil
}

// NotifySink shows a desktop notification for every alert.
type NotifySink struct {
	notifier Notifier
}

// NewNotifySink returns a sink showing notifications with the given notifier.
func NewNotifySink(notifier Notifier) *NotifySink {
	return &NotifySink{notifier: notifier}
}

// Name implements Sink.
func (ns *NotifySink) Name() string {
	return "notify"
}

// Send implements Sink.
func (ns *NotifySink) Send(ctx context.Context, alert Alert) error {
	return ns.notifier.Notify(ctx, "Potential port scan", alert.Line(), map[string]dbus.Variant{
		"urgency":        dbus.MakeVariant(byte(2)),
		"suppress-sound": dbus.MakeVariant(true),
	})
}

// Close implements Sink.
func (ns *NotifySink) Close() error {
	return nil
}
