// Package directory implements the in-memory mapping from a remote
// address to a server record. It has no internal synchronization: the
// spec requires a single goroutine (the master engine) to own all
// mutation, so a mutex would only hide bugs rather than prevent them.
package directory

import (
	"fmt"
	"time"
)

// Addr is the (host, port) primary key of a server record.
type Addr struct {
	Host string
	Port uint16
}

func (a Addr) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Metadata is the last successfully parsed query response from a server,
// represented as a typed record per the design note against an open
// key/value bag.
type Metadata struct {
	Version    string
	MaxPlayers uint8
	Name       string
}

// Record is one entry in the server directory.
type Record struct {
	Addr Addr

	AddTime     time.Time
	RefreshTime time.Time

	Verified       bool
	NeedsHolePunch bool

	Metadata     Metadata
	MetadataTime time.Time // zero value means "absent"
}

// HasMetadata reports whether the record has ever received a query
// response.
func (r *Record) HasMetadata() bool {
	return !r.MetadataTime.IsZero()
}

// Age returns the number of whole seconds since the record was first
// added, as of now.
func (r *Record) Age(now time.Time) int {
	return int(now.Sub(r.AddTime).Seconds())
}
