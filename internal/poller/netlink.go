package poller

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"scorch/internal/logging"
)

// NetlinkTrigger listens for udev media-change events on the watched
// optical device and fires an immediate media refresh instead of waiting
// for the next poll tick.
type NetlinkTrigger struct {
	poller *Poller
	logger *slog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewNetlinkTrigger wires a trigger to the poller.
func NewNetlinkTrigger(p *Poller, logger *slog.Logger) *NetlinkTrigger {
	return &NetlinkTrigger{
		poller: p,
		logger: logging.NewComponentLogger(logger, "netlink-trigger"),
	}
}

// Start begins listening for udev netlink events. A connection failure is
// non-fatal: media detection falls back to periodic polling.
func (t *NetlinkTrigger) Start(ctx context.Context) error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		t.logger.Warn("failed to connect to netlink socket; media detection will rely on polling",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure permission to access netlink sockets"),
		)
		return nil
	}

	t.conn = conn
	t.quit = make(chan struct{})
	t.running = true

	quit := t.quit
	go t.monitorLoop(ctx, quit)

	t.logger.Info("netlink trigger started",
		logging.String(logging.FieldEventType, "netlink_trigger_started"))
	return nil
}

// Stop shuts down the listener.
func (t *NetlinkTrigger) Stop() {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	if t.quit != nil {
		close(t.quit)
		t.quit = nil
	}
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	t.running = false

	t.logger.Info("netlink trigger stopped",
		logging.String(logging.FieldEventType, "netlink_trigger_stopped"))
}

// Running reports whether the listener is active.
func (t *NetlinkTrigger) Running() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *NetlinkTrigger) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			t.handleEvent(uevent)
		case err := <-errs:
			t.logger.Warn("netlink trigger error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_trigger_error"))
		}
	}
}

// buildMatcher matches optical media change events:
// SUBSYSTEM=block, ID_CDROM=1, ACTION=change|add.
func buildMatcher() netlink.Matcher {
	action := "change|add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
			"ID_CDROM":  "1",
		},
	})
	return rules
}

func (t *NetlinkTrigger) handleEvent(uevent netlink.UEvent) {
	devname := extractDeviceName(uevent)
	if devname == "" {
		return
	}
	if watched := t.poller.Recorder(); watched != "" && devname != watched {
		t.logger.Debug("ignoring event for unwatched device",
			logging.String("device", devname),
			logging.String(logging.FieldRecorder, watched))
		return
	}

	t.logger.Debug("media change detected via netlink",
		logging.String("device", devname),
		logging.String("action", string(uevent.Action)),
		logging.String(logging.FieldEventType, "netlink_media_change"))
	t.poller.TriggerMediaRefresh()
}

func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		return devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
