// Package events fans out domain change events to registered subscribers.
// Invocation is sequential in insertion order; a failing subscriber is logged
// and skipped so it can neither starve later subscribers nor fail the
// mutation that triggered the event.
package events

import (
	"context"
	"log/slog"
	"sync"

	"ocpihub/internal/ocpi"
)

// Notifier holds per-event-kind subscriber lists.
type Notifier struct {
	mu     sync.RWMutex
	logger *slog.Logger

	locationAdded   []func(context.Context, ocpi.Location)
	locationChanged []func(context.Context, ocpi.Location, ocpi.Location)
	locationRemoved []func(context.Context, ocpi.Location)

	evseAdded         []func(context.Context, string, ocpi.EVSE)
	evseChanged       []func(context.Context, string, ocpi.EVSE, ocpi.EVSE)
	evseStatusChanged []func(context.Context, string, ocpi.EVSE, ocpi.EVSEStatus, ocpi.EVSEStatus)
	evseRemoved       []func(context.Context, string, ocpi.EVSE)

	tariffAdded   []func(context.Context, ocpi.Tariff)
	tariffChanged []func(context.Context, ocpi.Tariff, ocpi.Tariff)
	tariffRemoved []func(context.Context, ocpi.Tariff)

	sessionAdded   []func(context.Context, ocpi.Session)
	sessionChanged []func(context.Context, ocpi.Session, ocpi.Session)
	sessionRemoved []func(context.Context, ocpi.Session)

	tokenStatusAdded   []func(context.Context, ocpi.TokenStatus)
	tokenStatusChanged []func(context.Context, ocpi.TokenStatus, ocpi.TokenStatus)
	tokenStatusRemoved []func(context.Context, ocpi.TokenStatus)

	cdrAdded   []func(context.Context, ocpi.CDR)
	cdrChanged []func(context.Context, ocpi.CDR, ocpi.CDR)
	cdrRemoved []func(context.Context, ocpi.CDR)
}

// NewNotifier builds an empty notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{logger: logger}
}

// call invokes one subscriber, converting a panic into a log line.
func (n *Notifier) call(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("event subscriber panicked", "event", kind, "panic", r)
		}
	}()
	fn()
}

func (n *Notifier) OnLocationAdded(fn func(context.Context, ocpi.Location)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.locationAdded = append(n.locationAdded, fn)
}

func (n *Notifier) OnLocationChanged(fn func(context.Context, ocpi.Location, ocpi.Location)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.locationChanged = append(n.locationChanged, fn)
}

func (n *Notifier) OnLocationRemoved(fn func(context.Context, ocpi.Location)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.locationRemoved = append(n.locationRemoved, fn)
}

func (n *Notifier) OnEVSEAdded(fn func(context.Context, string, ocpi.EVSE)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evseAdded = append(n.evseAdded, fn)
}

func (n *Notifier) OnEVSEChanged(fn func(context.Context, string, ocpi.EVSE, ocpi.EVSE)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evseChanged = append(n.evseChanged, fn)
}

func (n *Notifier) OnEVSEStatusChanged(fn func(context.Context, string, ocpi.EVSE, ocpi.EVSEStatus, ocpi.EVSEStatus)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evseStatusChanged = append(n.evseStatusChanged, fn)
}

func (n *Notifier) OnEVSERemoved(fn func(context.Context, string, ocpi.EVSE)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evseRemoved = append(n.evseRemoved, fn)
}

func (n *Notifier) OnTariffAdded(fn func(context.Context, ocpi.Tariff)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tariffAdded = append(n.tariffAdded, fn)
}

func (n *Notifier) OnTariffChanged(fn func(context.Context, ocpi.Tariff, ocpi.Tariff)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tariffChanged = append(n.tariffChanged, fn)
}

func (n *Notifier) OnTariffRemoved(fn func(context.Context, ocpi.Tariff)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tariffRemoved = append(n.tariffRemoved, fn)
}

func (n *Notifier) OnSessionAdded(fn func(context.Context, ocpi.Session)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sessionAdded = append(n.sessionAdded, fn)
}

func (n *Notifier) OnSessionChanged(fn func(context.Context, ocpi.Session, ocpi.Session)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sessionChanged = append(n.sessionChanged, fn)
}

func (n *Notifier) OnSessionRemoved(fn func(context.Context, ocpi.Session)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sessionRemoved = append(n.sessionRemoved, fn)
}

func (n *Notifier) OnTokenStatusAdded(fn func(context.Context, ocpi.TokenStatus)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokenStatusAdded = append(n.tokenStatusAdded, fn)
}

func (n *Notifier) OnTokenStatusChanged(fn func(context.Context, ocpi.TokenStatus, ocpi.TokenStatus)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokenStatusChanged = append(n.tokenStatusChanged, fn)
}

func (n *Notifier) OnTokenStatusRemoved(fn func(context.Context, ocpi.TokenStatus)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokenStatusRemoved = append(n.tokenStatusRemoved, fn)
}

func (n *Notifier) OnCDRAdded(fn func(context.Context, ocpi.CDR)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cdrAdded = append(n.cdrAdded, fn)
}

func (n *Notifier) OnCDRChanged(fn func(context.Context, ocpi.CDR, ocpi.CDR)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cdrChanged = append(n.cdrChanged, fn)
}

func (n *Notifier) OnCDRRemoved(fn func(context.Context, ocpi.CDR)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cdrRemoved = append(n.cdrRemoved, fn)
}

func (n *Notifier) LocationAdded(ctx context.Context, l ocpi.Location) {
	n.mu.RLock()
	subs := n.locationAdded
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("LocationAdded", func() { fn(ctx, l) })
	}
}

func (n *Notifier) LocationChanged(ctx context.Context, old, updated ocpi.Location) {
	n.mu.RLock()
	subs := n.locationChanged
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("LocationChanged", func() { fn(ctx, old, updated) })
	}
}

func (n *Notifier) LocationRemoved(ctx context.Context, l ocpi.Location) {
	n.mu.RLock()
	subs := n.locationRemoved
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("LocationRemoved", func() { fn(ctx, l) })
	}
}

func (n *Notifier) EVSEAdded(ctx context.Context, locationID string, e ocpi.EVSE) {
	n.mu.RLock()
	subs := n.evseAdded
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("EVSEAdded", func() { fn(ctx, locationID, e) })
	}
}

func (n *Notifier) EVSEChanged(ctx context.Context, locationID string, old, updated ocpi.EVSE) {
	n.mu.RLock()
	subs := n.evseChanged
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("EVSEChanged", func() { fn(ctx, locationID, old, updated) })
	}
}

func (n *Notifier) EVSEStatusChanged(ctx context.Context, locationID string, e ocpi.EVSE, old, updated ocpi.EVSEStatus) {
	n.mu.RLock()
	subs := n.evseStatusChanged
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("EVSEStatusChanged", func() { fn(ctx, locationID, e, old, updated) })
	}
}

func (n *Notifier) EVSERemoved(ctx context.Context, locationID string, e ocpi.EVSE) {
	n.mu.RLock()
	subs := n.evseRemoved
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("EVSERemoved", func() { fn(ctx, locationID, e) })
	}
}

func (n *Notifier) TariffAdded(ctx context.Context, t ocpi.Tariff) {
	n.mu.RLock()
	subs := n.tariffAdded
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("TariffAdded", func() { fn(ctx, t) })
	}
}

func (n *Notifier) TariffChanged(ctx context.Context, old, updated ocpi.Tariff) {
	n.mu.RLock()
	subs := n.tariffChanged
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("TariffChanged", func() { fn(ctx, old, updated) })
	}
}

func (n *Notifier) TariffRemoved(ctx context.Context, t ocpi.Tariff) {
	n.mu.RLock()
	subs := n.tariffRemoved
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("TariffRemoved", func() { fn(ctx, t) })
	}
}

func (n *Notifier) SessionAdded(ctx context.Context, s ocpi.Session) {
	n.mu.RLock()
	subs := n.sessionAdded
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("SessionAdded", func() { fn(ctx, s) })
	}
}

func (n *Notifier) SessionChanged(ctx context.Context, old, updated ocpi.Session) {
	n.mu.RLock()
	subs := n.sessionChanged
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("SessionChanged", func() { fn(ctx, old, updated) })
	}
}

func (n *Notifier) SessionRemoved(ctx context.Context, s ocpi.Session) {
	n.mu.RLock()
	subs := n.sessionRemoved
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("SessionRemoved", func() { fn(ctx, s) })
	}
}

func (n *Notifier) TokenStatusAdded(ctx context.Context, t ocpi.TokenStatus) {
	n.mu.RLock()
	subs := n.tokenStatusAdded
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("TokenStatusAdded", func() { fn(ctx, t) })
	}
}

func (n *Notifier) TokenStatusChanged(ctx context.Context, old, updated ocpi.TokenStatus) {
	n.mu.RLock()
	subs := n.tokenStatusChanged
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("TokenStatusChanged", func() { fn(ctx, old, updated) })
	}
}

func (n *Notifier) TokenStatusRemoved(ctx context.Context, t ocpi.TokenStatus) {
	n.mu.RLock()
	subs := n.tokenStatusRemoved
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("TokenStatusRemoved", func() { fn(ctx, t) })
	}
}

func (n *Notifier) CDRAdded(ctx context.Context, c ocpi.CDR) {
	n.mu.RLock()
	subs := n.cdrAdded
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("CDRAdded", func() { fn(ctx, c) })
	}
}

func (n *Notifier) CDRChanged(ctx context.Context, old, updated ocpi.CDR) {
	n.mu.RLock()
	subs := n.cdrChanged
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("CDRChanged", func() { fn(ctx, old, updated) })
	}
}

func (n *Notifier) CDRRemoved(ctx context.Context, c ocpi.CDR) {
	n.mu.RLock()
	subs := n.cdrRemoved
	n.mu.RUnlock()
	for _, fn := range subs {
		n.call("CDRRemoved", func() { fn(ctx, c) })
	}
}
