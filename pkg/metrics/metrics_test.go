package metrics

import (
	"testing"

	"github.com/doomward/masterd/pkg/wire"
)

func TestCountersSnapshotIsACopy(t *testing.T) {
	c := New()
	c.IncPacket(wire.TypeAdd)
	c.IncRecordsAdded()
	c.SetDirectorySize(3)

	snap := c.Snapshot()
	if snap.PacketsByType[wire.TypeAdd] != 1 {
		t.Fatalf("got %d ADD packets, want 1", snap.PacketsByType[wire.TypeAdd])
	}
	if snap.RecordsAdded != 1 {
		t.Fatalf("got %d records added, want 1", snap.RecordsAdded)
	}
	if snap.DirectorySize != 3 {
		t.Fatalf("got directory size %d, want 3", snap.DirectorySize)
	}

	// Mutating live counters after the snapshot must not affect it.
	c.IncPacket(wire.TypeAdd)
	if snap.PacketsByType[wire.TypeAdd] != 1 {
		t.Fatal("snapshot aliased live counter state")
	}
}

func TestCountersAllIncrement(t *testing.T) {
	c := New()
	c.IncRecordsVerified()
	c.IncRecordsTimedOut()
	c.IncRecordsFailedVerify()
	c.IncRecordsReQueried()
	c.IncHolePunchesForwarded()
	c.IncSignStartIssued()
	c.IncSignEndIssued()
	c.IncSignEndRejected()
	c.IncDroppedBanned()
	c.IncDroppedMalformed()

	snap := c.Snapshot()
	if snap.RecordsVerified != 1 || snap.RecordsTimedOut != 1 || snap.RecordsFailedVerify != 1 ||
		snap.RecordsReQueried != 1 || snap.HolePunchesForwarded != 1 || snap.SignStartIssued != 1 ||
		snap.SignEndIssued != 1 || snap.SignEndRejected != 1 || snap.DroppedBanned != 1 ||
		snap.DroppedMalformed != 1 {
		t.Fatalf("expected every counter to be 1, got %+v", snap)
	}
}
