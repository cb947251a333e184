package safemode

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/apache/ozone-scm/pkg/events"
)

// Controller owns the pre-check and full rule sets and the one-way
// in_safe_mode flip. It is re-evaluated synchronously from
// Notify, called by whichever component just observed a report that
// could satisfy a rule (registration, pipeline-report, container-
// report) — there is no independent poll loop.
type Controller struct {
	mu sync.RWMutex

	preCheckRules []Rule
	allRules      []Rule

	preCheckComplete bool
	inSafeMode       bool

	bus *events.Broker
	log zerolog.Logger
}

func New(preCheckRules, otherRules []Rule, bus *events.Broker, logger zerolog.Logger) *Controller {
	return &Controller{
		preCheckRules: preCheckRules,
		allRules:      append(append([]Rule{}, preCheckRules...), otherRules...),
		inSafeMode:    true,
		bus:           bus,
		log:           logger,
	}
}

// Notify re-evaluates every rule and applies the one-way flip. Safe to
// call from any goroutine, including concurrently with itself; it is
// idempotent once in_safe_mode has reached false.
func (c *Controller) Notify() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.inSafeMode {
		return // one-way: never re-evaluate once we've left safe mode
	}

	for _, r := range c.preCheckRules {
		r.Refresh()
	}
	preCheckOK := allPass(c.preCheckRules)
	if preCheckOK && !c.preCheckComplete {
		c.preCheckComplete = true
		c.publish(events.EventSafeModePreCheckComplete)
	}

	for _, r := range c.allRules {
		r.Refresh()
	}
	if allPass(c.allRules) {
		c.inSafeMode = false
		c.publish(events.EventSafeModeExited)
		c.log.Info().Msg("safe mode exited")
	}
}

func allPass(rules []Rule) bool {
	for _, r := range rules {
		if !r.Validate() {
			return false
		}
	}
	return true
}

// InSafeMode reports the current admission-gate state.
func (c *Controller) InSafeMode() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inSafeMode
}

// PreCheckComplete reports whether the pre-check rule subset has
// passed at least once.
func (c *Controller) PreCheckComplete() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.preCheckComplete
}

// StatusText renders every rule's current status line, for the
// safe-mode status RPC.
func (c *Controller) StatusText() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.allRules))
	for _, r := range c.allRules {
		out = append(out, r.StatusText())
	}
	return out
}

func (c *Controller) publish(t events.EventType) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(&events.Event{Type: t})
}
