package directory

import "time"

// Directory is the sole owner of server records. All methods must be
// called from a single goroutine; see the package doc comment.
type Directory struct {
	records map[Addr]*Record
}

// New returns an empty directory.
func New() *Directory {
	return &Directory{records: make(map[Addr]*Record)}
}

// Get returns the record at addr, if any.
func (d *Directory) Get(addr Addr) (*Record, bool) {
	r, ok := d.records[addr]
	return r, ok
}

// Upsert creates a new unverified record for addr (bumping both AddTime
// and RefreshTime to now) or, if one already exists, refreshes its
// RefreshTime. It returns the record and whether it was newly created.
func (d *Directory) Upsert(addr Addr, now time.Time) (*Record, bool) {
	if r, ok := d.records[addr]; ok {
		r.RefreshTime = now
		return r, false
	}
	r := &Record{
		Addr:        addr,
		AddTime:     now,
		RefreshTime: now,
	}
	d.records[addr] = r
	return r, true
}

// Remove deletes the record at addr, if any.
func (d *Directory) Remove(addr Addr) {
	delete(d.records, addr)
}

// Len returns the number of records currently held, verified or not.
func (d *Directory) Len() int {
	return len(d.records)
}

// VerifiedSnapshot returns a stable slice of all currently verified
// records. Per invariant 4, only verified records are ever client-visible.
func (d *Directory) VerifiedSnapshot() []*Record {
	out := make([]*Record, 0, len(d.records))
	for _, r := range d.records {
		if r.Verified {
			out = append(out, r)
		}
	}
	return out
}

// AllSnapshot returns a stable slice of every record, verified or not,
// for internal use (aging pass, NAT_HOLE_PUNCH_ALL).
func (d *Directory) AllSnapshot() []*Record {
	out := make([]*Record, 0, len(d.records))
	for _, r := range d.records {
		out = append(out, r)
	}
	return out
}
