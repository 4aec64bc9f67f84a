// Package master implements the protocol engine and event loop: packet
// dispatch, the add/verify/timeout state machine, query-response
// chunking, and NAT hole-punch brokering.
package master

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/doomward/masterd/pkg/banlist"
	"github.com/doomward/masterd/pkg/directory"
	"github.com/doomward/masterd/pkg/logging"
	"github.com/doomward/masterd/pkg/metrics"
	"github.com/doomward/masterd/pkg/signer"
	"github.com/doomward/masterd/pkg/status"
)

// ProtocolVersion is advertised in the GET_METADATA_RESPONSE master
// banner (see SPEC_FULL.md §4.3).
const ProtocolVersion = 1

// udpSender is the subset of *net.UDPConn the engine needs; satisfied
// by *net.UDPConn and by a fake in tests.
type udpSender interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
}

// Datagram is one received packet, tagged with its source address.
type Datagram struct {
	Addr *net.UDPAddr
	Data []byte
}

// ReadLoop reads datagrams from conn and pushes them onto out until the
// socket is closed. It does nothing but read — all state mutation
// happens in the Engine's own goroutine, per the spec's single-owner
// concurrency model.
func ReadLoop(conn *net.UDPConn, out chan<- Datagram) {
	buf := make([]byte, 65535)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		out <- Datagram{Addr: addr, Data: data}
	}
}

// Config collects the Engine's collaborators.
type Config struct {
	Directory *directory.Directory
	Bans      *banlist.List
	Signer    signer.Signer // nil disables SIGN_START/SIGN_END
	Metrics   *metrics.Counters
	Status    *status.Server // nil disables the status publish
	Logger    *logrus.Logger

	Public udpSender
	// Verify is nil when no verification socket is configured; all
	// registrations will then fail their 5-second deadline, per spec.
	Verify udpSender
	// VerifyAddr is the verification socket's advertised "host:port",
	// used as the payload of a self-directed hole punch.
	VerifyAddr string

	ServerTimeout       time.Duration
	MetadataRefreshTime time.Duration

	// Now defaults to time.Now; overridable for deterministic tests.
	Now func() time.Time
}

// Engine is the protocol dispatcher and aging-pass driver. All methods
// must be called from a single goroutine.
type Engine struct {
	dir     *directory.Directory
	bans    *banlist.List
	signer  signer.Signer
	metrics *metrics.Counters
	status  *status.Server
	log     *logrus.Logger

	public     udpSender
	verify     udpSender
	verifyAddr string

	serverTimeout   time.Duration
	metadataRefresh time.Duration

	now func() time.Time
}

// New constructs an Engine from cfg.
func New(cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		dir:             cfg.Directory,
		bans:            cfg.Bans,
		signer:          cfg.Signer,
		metrics:         cfg.Metrics,
		status:          cfg.Status,
		log:             cfg.Logger,
		public:          cfg.Public,
		verify:          cfg.Verify,
		verifyAddr:      cfg.VerifyAddr,
		serverTimeout:   cfg.ServerTimeout,
		metadataRefresh: cfg.MetadataRefreshTime,
		now:             now,
	}
}

// Run drives the event loop until ctx is cancelled. publicCh and
// verifyCh are typically fed by ReadLoop goroutines; verifyCh may be nil
// when verification is disabled (a nil channel blocks forever in
// select, which is exactly "never receive on this socket").
//
// The aging pass runs ahead of any packet handled in the same tick. The
// two sockets have no fixed order between them: when both channels are
// ready, select picks one at random. That cross-socket order is not
// externally observable.
func (e *Engine) Run(ctx context.Context, publicCh, verifyCh <-chan Datagram) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		// A plain multi-way select below would pick among ready cases
		// pseudo-randomly, so a queued datagram could be handled ahead of
		// a simultaneously-ready tick. Draining the ticker here first
		// guarantees the aging pass always runs before any datagram
		// handled in the same tick window, so a record that has just
		// timed out can't be saved by a straggling response.
		select {
		case <-ticker.C:
			e.agingPass(e.now())
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.agingPass(e.now())
		case dg := <-publicCh:
			e.handlePublic(dg.Addr, dg.Data)
		case dg := <-verifyCh:
			e.handleVerify(dg.Addr, dg.Data)
		}
	}
}

func toAddr(a *net.UDPAddr) directory.Addr {
	return directory.Addr{Host: a.IP.String(), Port: uint16(a.Port)}
}

func udpAddrOf(a directory.Addr) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(a.Host), Port: int(a.Port)}
}

func (e *Engine) sendPublic(addr *net.UDPAddr, pkt []byte) {
	if _, err := e.public.WriteToUDP(pkt, addr); err != nil {
		e.warnAddr(addr, "write to public socket failed: %v", err)
	}
}

func (e *Engine) sendVerify(addr *net.UDPAddr, pkt []byte) {
	if e.verify == nil {
		return
	}
	if _, err := e.verify.WriteToUDP(pkt, addr); err != nil {
		e.warnAddr(addr, "write to verification socket failed: %v", err)
	}
}

// warnAddr, infoAddr, and debugAddr log at the three severities
// SPEC_FULL.md §7 assigns: Warn for dropped/malformed ingress, Info for
// directory lifecycle transitions (registered, verified, timed out,
// deleted), and Debug for hole-punch forwarding detail. The *Str
// variants take an already-formatted address, for call sites (aging,
// directory removal) that no longer hold a *net.UDPAddr.
func (e *Engine) warnAddr(addr *net.UDPAddr, format string, args ...interface{}) {
	e.logAddrStr(logrus.WarnLevel, addr.String(), format, args...)
}

func (e *Engine) infoAddr(addr *net.UDPAddr, format string, args ...interface{}) {
	e.logAddrStr(logrus.InfoLevel, addr.String(), format, args...)
}

func (e *Engine) debugAddr(addr *net.UDPAddr, format string, args ...interface{}) {
	e.logAddrStr(logrus.DebugLevel, addr.String(), format, args...)
}

func (e *Engine) warnAddrStr(addr string, format string, args ...interface{}) {
	e.logAddrStr(logrus.WarnLevel, addr, format, args...)
}

func (e *Engine) infoAddrStr(addr string, format string, args ...interface{}) {
	e.logAddrStr(logrus.InfoLevel, addr, format, args...)
}

func (e *Engine) debugAddrStr(addr string, format string, args ...interface{}) {
	e.logAddrStr(logrus.DebugLevel, addr, format, args...)
}

func (e *Engine) logAddrStr(level logrus.Level, addr string, format string, args ...interface{}) {
	if e.log == nil {
		return
	}
	entry := logging.WithAddr(e.log, addr)
	switch level {
	case logrus.WarnLevel:
		entry.Warnf(format, args...)
	case logrus.InfoLevel:
		entry.Infof(format, args...)
	default:
		entry.Debugf(format, args...)
	}
}
