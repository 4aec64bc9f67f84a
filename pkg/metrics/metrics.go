// Package metrics tracks the master daemon's operational counters: a
// handful of monotonic counts and one gauge, not the teacher's full
// multi-window time-series engine, which this daemon has no use for.
package metrics

import (
	"sync"

	"github.com/doomward/masterd/pkg/wire"
)

// Snapshot is a plain-value copy of the counters, safe to hand to
// observers (e.g. pkg/status) without aliasing live state.
type Snapshot struct {
	PacketsByType map[wire.Type]uint64

	RecordsAdded           uint64
	RecordsVerified        uint64
	RecordsTimedOut        uint64
	RecordsFailedVerify    uint64
	RecordsReQueried       uint64
	HolePunchesForwarded   uint64
	SignStartIssued        uint64
	SignEndIssued          uint64
	SignEndRejected        uint64
	DroppedBanned          uint64
	DroppedMalformed       uint64

	DirectorySize int
}

// Counters is the live, mutable counter set. Unlike pkg/directory, it is
// guarded by a mutex that every increment, SetDirectorySize and Snapshot
// take, so Snapshot may be called from any goroutine. In the daemon the
// engine calls Snapshot once per tick and publishes the result to
// pkg/status.
type Counters struct {
	mu sync.Mutex // guards every field below

	packetsByType map[wire.Type]uint64

	recordsAdded         uint64
	recordsVerified      uint64
	recordsTimedOut      uint64
	recordsFailedVerify  uint64
	recordsReQueried     uint64
	holePunchesForwarded uint64
	signStartIssued      uint64
	signEndIssued        uint64
	signEndRejected      uint64
	droppedBanned        uint64
	droppedMalformed     uint64

	directorySize int
}

// New returns a zeroed Counters.
func New() *Counters {
	return &Counters{packetsByType: make(map[wire.Type]uint64)}
}

func (c *Counters) IncPacket(t wire.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packetsByType[t]++
}

func (c *Counters) IncRecordsAdded()         { c.mu.Lock(); c.recordsAdded++; c.mu.Unlock() }
func (c *Counters) IncRecordsVerified()      { c.mu.Lock(); c.recordsVerified++; c.mu.Unlock() }
func (c *Counters) IncRecordsTimedOut()      { c.mu.Lock(); c.recordsTimedOut++; c.mu.Unlock() }
func (c *Counters) IncRecordsFailedVerify()  { c.mu.Lock(); c.recordsFailedVerify++; c.mu.Unlock() }
func (c *Counters) IncRecordsReQueried()     { c.mu.Lock(); c.recordsReQueried++; c.mu.Unlock() }
func (c *Counters) IncHolePunchesForwarded() { c.mu.Lock(); c.holePunchesForwarded++; c.mu.Unlock() }
func (c *Counters) IncSignStartIssued()      { c.mu.Lock(); c.signStartIssued++; c.mu.Unlock() }
func (c *Counters) IncSignEndIssued()        { c.mu.Lock(); c.signEndIssued++; c.mu.Unlock() }
func (c *Counters) IncSignEndRejected()      { c.mu.Lock(); c.signEndRejected++; c.mu.Unlock() }
func (c *Counters) IncDroppedBanned()        { c.mu.Lock(); c.droppedBanned++; c.mu.Unlock() }
func (c *Counters) IncDroppedMalformed()     { c.mu.Lock(); c.droppedMalformed++; c.mu.Unlock() }

// SetDirectorySize updates the sampled directory-size gauge; called once
// per aging pass.
func (c *Counters) SetDirectorySize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.directorySize = n
}

// Snapshot returns a point-in-time copy of all counters.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	byType := make(map[wire.Type]uint64, len(c.packetsByType))
	for k, v := range c.packetsByType {
		byType[k] = v
	}

	return Snapshot{
		PacketsByType:        byType,
		RecordsAdded:         c.recordsAdded,
		RecordsVerified:      c.recordsVerified,
		RecordsTimedOut:      c.recordsTimedOut,
		RecordsFailedVerify:  c.recordsFailedVerify,
		RecordsReQueried:     c.recordsReQueried,
		HolePunchesForwarded: c.holePunchesForwarded,
		SignStartIssued:      c.signStartIssued,
		SignEndIssued:        c.signEndIssued,
		SignEndRejected:      c.signEndRejected,
		DroppedBanned:        c.droppedBanned,
		DroppedMalformed:     c.droppedMalformed,
		DirectorySize:        c.directorySize,
	}
}
