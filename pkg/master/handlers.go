package master

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/doomward/masterd/pkg/directory"
	"github.com/doomward/masterd/pkg/wire"
)

// handlePublic dispatches a packet received on the public socket.
func (e *Engine) handlePublic(addr *net.UDPAddr, data []byte) {
	t, payload, err := wire.DecodeHeader(data)
	if err != nil {
		e.warnAddr(addr, "dropping malformed packet: %v", err)
		e.metrics.IncDroppedMalformed()
		return
	}
	e.metrics.IncPacket(t)

	switch t {
	case wire.TypeAdd:
		e.handleAdd(addr)
	case wire.TypeQuery:
		e.handleQuery(addr)
	case wire.TypeGetMetadata:
		e.handleGetMetadata(addr)
	case wire.TypeSignStart:
		e.handleSignStart(addr)
	case wire.TypeSignEnd:
		e.handleSignEnd(addr, payload)
	case wire.TypeNATHolePunch:
		e.handleNATHolePunch(addr, payload)
	case wire.TypeNATHolePunchAll:
		e.handleNATHolePunchAll(addr)
	default:
		e.warnAddr(addr, "dropping unexpected packet type %s on public socket", t)
		e.metrics.IncDroppedMalformed()
	}
}

// handleVerify dispatches a packet received on the verification socket.
func (e *Engine) handleVerify(addr *net.UDPAddr, data []byte) {
	t, payload, err := wire.DecodeHeader(data)
	if err != nil {
		e.warnAddr(addr, "dropping malformed packet on verification socket: %v", err)
		return
	}

	switch t {
	case wire.TypeVerifyQueryResp:
		e.handleVerifyQueryResponse(addr, payload)
	case wire.TypeVerifyHolePunch:
		e.handleVerifyHolePunch(addr)
	default:
		e.warnAddr(addr, "dropping unexpected packet type %s on verification socket", t)
	}
}

func (e *Engine) handleAdd(addr *net.UDPAddr) {
	key := toAddr(addr)
	if e.bans.IsBlocked(key.String()) {
		e.warnAddr(addr, "dropping ADD from banned address")
		e.metrics.IncDroppedBanned()
		return
	}

	now := e.now()
	rec, created := e.dir.Upsert(key, now)
	if created {
		e.metrics.IncRecordsAdded()
	}

	if rec.Verified && rec.HasMetadata() && now.Sub(rec.MetadataTime) > e.metadataRefresh {
		rec.Verified = false
		rec.NeedsHolePunch = false
		e.metrics.IncRecordsReQueried()
	}

	if rec.Verified {
		e.infoAddr(addr, "registered")
		e.sendPublic(addr, wire.EncodeAddResponse(true))
		return
	}

	// Unverified (new or stale): ask for a reachability proof from the
	// independent verification socket. The response is deferred until
	// handleVerifyQueryResponse sees the answer, or the record times out.
	e.sendVerify(addr, wire.EncodeVerifyQuery())
}

func (e *Engine) handleVerifyQueryResponse(addr *net.UDPAddr, payload []byte) {
	key := toAddr(addr)
	rec, ok := e.dir.Get(key)
	if !ok {
		e.warnAddr(addr, "dropping verification response from unregistered address")
		return
	}

	version, maxPlayers, name, err := wire.DecodeServerQueryResponse(payload)
	if err != nil {
		e.warnAddr(addr, "dropping malformed verification response: %v", err)
		return
	}

	rec.Metadata = directory.Metadata{Version: version, MaxPlayers: maxPlayers, Name: name}
	rec.MetadataTime = e.now()

	if !rec.Verified {
		rec.Verified = true
		rec.NeedsHolePunch = false
		e.metrics.IncRecordsVerified()
		e.infoAddr(addr, "verified")
		e.sendPublic(addr, wire.EncodeAddResponse(true))
	}
}

func (e *Engine) handleVerifyHolePunch(addr *net.UDPAddr) {
	key := toAddr(addr)
	rec, ok := e.dir.Get(key)
	if !ok || rec.Verified || !rec.NeedsHolePunch {
		return
	}
	e.sendVerify(addr, wire.EncodeVerifyQuery())
}

func (e *Engine) handleQuery(addr *net.UDPAddr) {
	recs := e.dir.VerifiedSnapshot()
	entries := make([]string, 0, len(recs))
	for _, r := range recs {
		entries = append(entries, r.Addr.String())
	}
	for _, chunk := range wire.ChunkStrings(entries, wire.MaxResponseLen) {
		e.sendPublic(addr, wire.EncodeQueryResponse(chunk))
	}
}

// metadataDoc is the per-server JSON document carried in a
// GET_METADATA_RESPONSE chunk stream.
type metadataDoc struct {
	Address    string `json:"address"`
	Port       uint16 `json:"port"`
	Version    string `json:"version"`
	MaxPlayers uint8  `json:"max_players"`
	Name       string `json:"name"`
	Age        int    `json:"age"`
}

// masterBanner is appended once, after every server document, when at
// least one verified server is reported; ServerCount is the number of
// those servers. An empty verified set gets no GET_METADATA_RESPONSE at
// all, banner included. See SPEC_FULL.md §4.3.
type masterBanner struct {
	ProtocolVersion int `json:"protocol_version"`
	ServerCount     int `json:"server_count"`
}

func (e *Engine) handleGetMetadata(addr *net.UDPAddr) {
	recs := e.dir.VerifiedSnapshot()
	now := e.now()

	docs := make([]string, 0, len(recs)+1)
	for _, r := range recs {
		b, _ := json.Marshal(metadataDoc{
			Address:    r.Addr.Host,
			Port:       r.Addr.Port,
			Version:    r.Metadata.Version,
			MaxPlayers: r.Metadata.MaxPlayers,
			Name:       r.Metadata.Name,
			Age:        r.Age(now),
		})
		docs = append(docs, string(b))
	}
	if len(recs) > 0 {
		b, _ := json.Marshal(masterBanner{ProtocolVersion: ProtocolVersion, ServerCount: len(recs)})
		docs = append(docs, string(b))
	}

	for _, chunk := range wire.ChunkStrings(docs, wire.MaxResponseLen) {
		e.sendPublic(addr, wire.EncodeMetadataResponse(chunk))
	}
}

func (e *Engine) handleSignStart(addr *net.UDPAddr) {
	if e.signer == nil {
		return
	}
	nonce, sig, err := e.signer.SignStart()
	if err != nil {
		e.warnAddr(addr, "sign_start failed: %v", err)
		return
	}
	e.metrics.IncSignStartIssued()
	e.infoAddr(addr, "issued sign_start nonce %s", e.signer.HexEncode(nonce))
	e.sendPublic(addr, wire.EncodeSignStartResponse(nonce, sig))
}

func (e *Engine) handleSignEnd(addr *net.UDPAddr, payload []byte) {
	if e.signer == nil {
		return
	}
	hash, startMsg, err := wire.DecodeSignEnd(payload)
	if err != nil {
		e.warnAddr(addr, "dropping malformed sign_end: %v", err)
		return
	}
	sig, ok := e.signer.SignEnd(startMsg, hash)
	if !ok {
		e.warnAddr(addr, "rejecting sign_end: verification failed")
		e.metrics.IncSignEndRejected()
		return
	}
	e.metrics.IncSignEndIssued()
	e.sendPublic(addr, wire.EncodeSignEndResponse(sig))
}

func (e *Engine) handleNATHolePunch(addr *net.UDPAddr, payload []byte) {
	targetStr, err := wire.DecodeNATHolePunchTarget(payload)
	if err != nil {
		e.warnAddr(addr, "dropping malformed nat_hole_punch: %v", err)
		return
	}
	target, err := parseHolePunchTarget(targetStr)
	if err != nil {
		e.warnAddr(addr, "dropping nat_hole_punch with unparsable target %q: %v", targetStr, err)
		return
	}
	rec, ok := e.dir.Get(target)
	if !ok {
		e.warnAddr(addr, "dropping nat_hole_punch for unknown target %s", target)
		return
	}
	e.forwardHolePunch(rec, toAddr(addr))
}

func (e *Engine) handleNATHolePunchAll(addr *net.UDPAddr) {
	from := toAddr(addr)
	for _, rec := range e.dir.AllSnapshot() {
		if rec.NeedsHolePunch {
			e.forwardHolePunch(rec, from)
		}
	}
}

// forwardHolePunch notifies target's registered address that from wants
// to punch through to it. The master only ever forwards one datagram; it
// does not itself attempt multi-candidate hole punching.
func (e *Engine) forwardHolePunch(target *directory.Record, from directory.Addr) {
	if !target.NeedsHolePunch {
		return
	}
	e.sendPublic(udpAddrOf(target.Addr), wire.EncodeNATHolePunch(from.String()))
	e.metrics.IncHolePunchesForwarded()
	e.debugAddrStr(target.Addr.String(), "forwarding hole punch from %s", from)
}

// parseHolePunchTarget parses a loosely-formed "host[:port]" string: a
// trailing ":N" is taken as the port only when N parses as an integer,
// otherwise the whole string is the host and DefaultHolePunchPort
// applies. This mirrors the original master's permissive split.
func parseHolePunchTarget(s string) (directory.Addr, error) {
	host := s
	port := wire.DefaultHolePunchPort
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		if p, err := strconv.Atoi(s[idx+1:]); err == nil {
			host = s[:idx]
			port = p
		}
	}
	if host == "" {
		return directory.Addr{}, fmt.Errorf("empty host")
	}
	return directory.Addr{Host: host, Port: uint16(port)}, nil
}
