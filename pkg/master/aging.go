package master

import (
	"time"

	"github.com/doomward/masterd/pkg/wire"
)

// agingPass runs once per engine tick: it evicts heartbeat-timed-out
// records, escalates stalled unverified records to a self-directed hole
// punch at the 2-second mark, fails verification outright at the
// 5-second deadline, and republishes the status snapshot.
func (e *Engine) agingPass(now time.Time) {
	for _, rec := range e.dir.AllSnapshot() {
		if now.Sub(rec.RefreshTime) > e.serverTimeout {
			e.dir.Remove(rec.Addr)
			e.metrics.IncRecordsTimedOut()
			e.infoAddrStr(rec.Addr.String(), "removing server: heartbeat timeout")
			continue
		}

		if rec.Verified {
			continue
		}

		age := now.Sub(rec.RefreshTime)

		if e.verify != nil && !rec.NeedsHolePunch && age > 2*time.Second {
			rec.NeedsHolePunch = true
			e.sendPublic(udpAddrOf(rec.Addr), wire.EncodeNATHolePunch(e.verifyAddr))
			e.metrics.IncHolePunchesForwarded()
			e.debugAddrStr(rec.Addr.String(), "forwarding self-directed hole punch to %s", e.verifyAddr)
		}

		if age > 5*time.Second {
			e.sendPublic(udpAddrOf(rec.Addr), wire.EncodeAddResponse(false))
			e.dir.Remove(rec.Addr)
			e.metrics.IncRecordsFailedVerify()
			e.infoAddrStr(rec.Addr.String(), "deleted: verification deadline expired")
		}
	}

	e.metrics.SetDirectorySize(e.dir.Len())
	if e.status != nil {
		e.status.Publish(len(e.dir.VerifiedSnapshot()), e.dir.Len(), e.metrics.Snapshot())
	}
}
