// Package clock implements the shared media-time source that provides the
// A/V synchronization reference described in the session graph: one master
// render session advances it, every other session observes it through a
// lock-free fast path keyed off an atomic generation counter.
package clock

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playgraph/tiger/mediatime"
)

// Role distinguishes the single authorized writer (Master) from the
// read-only observers (Slave).
type Role int

const (
	RoleSlave Role = iota
	RoleMaster
)

// State is the payload of a clock-state notification delivered to Clock
// listeners (typically a render session's dispatcher).
type State int

const (
	StateTicking State = iota
	StatePaused
	StateTimeChanged
)

// ErrMasterExists is returned by GetClock(RoleMaster) when a master handle
// is already outstanding; at most one may exist at a time.
var ErrMasterExists = errors.New("clock: a master clock already exists")

type snapshot struct {
	mediaTime  mediatime.Time
	systemTime time.Time
	started    bool
	ticking    bool
	speed      float64
}

func (s snapshot) projected(now time.Time) mediatime.Time {
	if !s.started || !s.ticking {
		return s.mediaTime
	}
	return s.mediaTime.Add(mediatime.FromMicroseconds(now.Sub(s.systemTime).Microseconds()))
}

func scaleBySpeed(t mediatime.Time, speed float64) mediatime.Time {
	if speed == 1.0 || !t.IsValid() {
		return t
	}
	return mediatime.FromMicroseconds(int64(float64(t.Microseconds()) * speed))
}

// SharedClock is the single piece of cross-session mutable state in the
// pipeline: a mutex-protected snapshot plus an atomic generation counter
// that lets Clock shadows skip the lock on the common, unchanged-state path.
type SharedClock struct {
	mu          sync.Mutex
	state       snapshot
	generation  atomic.Uint64
	masterCount atomic.Int32

	listenersMu sync.Mutex
	listeners   map[any]func(State)
}

// New creates a SharedClock at time zero, paused, speed 1.0.
func New() *SharedClock {
	return &SharedClock{
		state:     snapshot{mediaTime: mediatime.Begin, speed: 1.0},
		listeners: make(map[any]func(State)),
	}
}

// Start marks play intent. If no master clock is bound yet, the clock
// starts ticking immediately and anchors system time to now; otherwise
// ticking is deferred until the master calls its own Clock.Start.
func (c *SharedClock) Start() {
	c.mu.Lock()
	if c.state.started {
		c.mu.Unlock()
		return
	}
	if c.masterCount.Load() == 0 {
		c.state.systemTime = time.Now()
		c.state.ticking = true
	}
	c.state.started = true
	c.generation.Add(1)
	c.mu.Unlock()
	c.notify(StateTicking)
}

// Pause freezes the projected media time and clears play intent. As with
// Start, an existing master defers the actual ticking flip to its own
// Clock.Pause.
func (c *SharedClock) Pause() {
	c.mu.Lock()
	if !c.state.started {
		c.mu.Unlock()
		return
	}
	if c.masterCount.Load() == 0 {
		c.state.mediaTime = c.state.projected(time.Now())
		c.state.systemTime = time.Now()
		c.state.ticking = false
	}
	c.state.started = false
	c.generation.Add(1)
	c.mu.Unlock()
	c.notify(StatePaused)
}

// Set repositions the clock without altering its running state. Used for
// seeks: every bound render session observes StateTimeChanged and re-prepares
// from the new position.
func (c *SharedClock) Set(ts mediatime.Time) {
	c.mu.Lock()
	c.state.mediaTime = ts
	c.state.systemTime = time.Now()
	c.generation.Add(1)
	c.mu.Unlock()
	c.notify(StateTimeChanged)
}

// SetSpeed changes the playback rate applied by Get.
func (c *SharedClock) SetSpeed(speed float64) {
	c.mu.Lock()
	c.state.speed = speed
	c.generation.Add(1)
	c.mu.Unlock()
}

// Speed returns the current playback rate.
func (c *SharedClock) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.speed
}

// Get returns the current media time, projected forward if ticking and
// scaled by speed.
func (c *SharedClock) Get() mediatime.Time {
	c.mu.Lock()
	s := c.state
	c.mu.Unlock()
	return scaleBySpeed(s.projected(time.Now()), s.speed)
}

// IsPaused reports whether play intent is currently off.
func (c *SharedClock) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.state.started
}

// applyFromMaster installs a snapshot computed by a master Clock handle
// without renotifying listeners — the master only ever reacts to a
// notification this same call chain already produced.
func (c *SharedClock) applyFromMaster(s snapshot) {
	c.mu.Lock()
	c.state = s
	c.generation.Add(1)
	c.mu.Unlock()
}

func (c *SharedClock) snapshotNow() snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GetClock returns a shadow handle with the given role. Only one RoleMaster
// handle may be outstanding; a second attempt returns ErrMasterExists.
func (c *SharedClock) GetClock(role Role) (*Clock, error) {
	if role == RoleMaster {
		if !c.masterCount.CompareAndSwap(0, 1) {
			return nil, ErrMasterExists
		}
	}
	cl := &Clock{shared: c, role: role}
	// Load the shadow unconditionally: a fresh handle's generation (0) can
	// equal the shared counter, which would make reload() skip the copy.
	cl.generation = c.generation.Load()
	cl.state = c.snapshotNow()
	return cl, nil
}

func (c *SharedClock) regListener(key any, fn func(State)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners[key] = fn
}

func (c *SharedClock) unregListener(key any) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	delete(c.listeners, key)
}

// notify fires every registered listener synchronously. Listeners are
// expected to just dispatch onto their owning session's Dispatcher and
// return immediately — they must not re-enter the clock.
func (c *SharedClock) notify(state State) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	for _, fn := range c.listeners {
		fn(state)
	}
}

// Clock is a per-observer shadow of a SharedClock: it reloads lazily by
// comparing against the shared generation counter, so a slave's Get() never
// takes the shared mutex unless the state actually changed since its last
// read.
type Clock struct {
	shared *SharedClock
	role   Role

	mu         sync.Mutex
	generation uint64
	state      snapshot
	released   bool
}

// Role returns whether this handle is the master or a slave.
func (c *Clock) Role() Role { return c.role }

// SetListener registers (or, with nil, clears) the state-change callback for
// this handle.
func (c *Clock) SetListener(fn func(State)) {
	if fn == nil {
		c.shared.unregListener(c)
		return
	}
	c.shared.regListener(c, fn)
}

// Release gives up this handle. A master handle frees the single master
// slot so a later GetClock(RoleMaster) can succeed (used on track failover,
// e.g. spec §8 scenario 4: disabling the audio track hands mastership to
// video).
func (c *Clock) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	c.shared.unregListener(c)
	if c.role == RoleMaster {
		c.shared.masterCount.Add(-1)
	}
}

func (c *Clock) reload() {
	gen := c.shared.generation.Load()
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.generation {
		return
	}
	c.generation = gen
	c.state = c.shared.snapshotNow()
}

// Get returns the current media time, scaled by speed.
func (c *Clock) Get() mediatime.Time {
	c.reload()
	c.mu.Lock()
	defer c.mu.Unlock()
	return scaleBySpeed(c.state.projected(time.Now()), c.state.speed)
}

// getUnscaled returns the projected media time without the speed multiplier,
// for use in Update()'s delta computation.
func (c *Clock) getUnscaled() mediatime.Time {
	c.reload()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.projected(time.Now())
}

// IsPaused reports whether play intent is currently off.
func (c *Clock) IsPaused() bool {
	c.reload()
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.state.started
}

// Speed returns the current playback rate.
func (c *Clock) Speed() float64 {
	c.reload()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.speed
}

// Start is valid only for the master handle: it anchors ticking at now and
// pushes the change to the SharedClock without renotifying listeners.
func (c *Clock) Start() {
	if c.role != RoleMaster {
		return
	}
	c.reload()
	c.mu.Lock()
	c.state.systemTime = time.Now()
	c.state.ticking = true
	c.state.started = true
	s := c.state
	c.mu.Unlock()
	c.shared.applyFromMaster(s)
}

// Pause is valid only for the master handle.
func (c *Clock) Pause() {
	if c.role != RoleMaster {
		return
	}
	c.reload()
	c.mu.Lock()
	c.state.mediaTime = c.state.projected(time.Now())
	c.state.systemTime = time.Now()
	c.state.ticking = false
	c.state.started = false
	s := c.state
	c.mu.Unlock()
	c.shared.applyFromMaster(s)
}

// Update advances the clock to t. Only the master may call it; t must be
// non-decreasing relative to the clock's current projection — a caller that
// passes an earlier t has its delta clamped to zero rather than rejected,
// so a spurious backward timestamp can't regress playback.
func (c *Clock) Update(t mediatime.Time) {
	if c.role != RoleMaster {
		return
	}
	c.reload()
	c.mu.Lock()
	delta := t.Sub(c.state.projected(time.Now()))
	if !delta.IsValid() || delta.Value < 0 {
		delta = mediatime.FromMicroseconds(0)
	}
	c.state.mediaTime = c.state.mediaTime.Add(delta)
	s := c.state
	c.mu.Unlock()
	c.shared.applyFromMaster(s)
}
