// Package systemd reports service state to the service manager through
// sd_notify. Every call is a no-op when NOTIFY_SOCKET is unset.
package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify messages.
type Notifier struct {
	send func(state string) (bool, error)
}

func New() *Notifier {
	return &Notifier{send: func(state string) (bool, error) { return daemon.SdNotify(false, state) }}
}

func (n *Notifier) Ready() error    { return n.notify(daemon.SdNotifyReady) }
func (n *Notifier) Stopping() error { return n.notify(daemon.SdNotifyStopping) }

// Status sets the free-form STATUS= line shown by systemctl status.
func (n *Notifier) Status(format string, args ...any) error {
	return n.notify("STATUS=" + fmt.Sprintf(format, args...))
}

func (n *Notifier) notify(state string) error {
	if n == nil || n.send == nil {
		return nil
	}
	_, err := n.send(state)
	return err
}

// Watchdog pings WATCHDOG=1 at half the configured WatchdogSec until ctx is
// done. It returns immediately when the watchdog is not enabled for the unit.
func (n *Notifier) Watchdog(ctx context.Context, alive func() bool) error {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil || every <= 0 {
		return err
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if alive != nil && !alive() {
				continue
			}
			if err := n.notify(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
