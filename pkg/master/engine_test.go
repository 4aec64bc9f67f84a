package master

import (
	"encoding/binary"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/doomward/masterd/pkg/banlist"
	"github.com/doomward/masterd/pkg/directory"
	"github.com/doomward/masterd/pkg/metrics"
	"github.com/doomward/masterd/pkg/wire"
)

func headerBytes(t wire.Type) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(t))
	return buf
}

// fakeSender records every outbound packet instead of touching a real
// socket, so the engine's handler logic can be exercised deterministically.
type fakeSender struct {
	sent []sentPacket
}

type sentPacket struct {
	addr *net.UDPAddr
	data []byte
}

func (f *fakeSender) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	f.sent = append(f.sent, sentPacket{addr: addr, data: cp})
	return len(b), nil
}

func (f *fakeSender) last() sentPacket {
	return f.sent[len(f.sent)-1]
}

func clientAddr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP("203.0.113.10"), Port: port}
}

func newTestEngine(t *testing.T, withVerify bool, now time.Time) (*Engine, *fakeSender, *fakeSender) {
	t.Helper()
	pub := &fakeSender{}
	var verify *fakeSender
	var verifySender udpSender
	if withVerify {
		verify = &fakeSender{}
		verifySender = verify
	}

	clock := now
	e := New(Config{
		Directory:           directory.New(),
		Bans:                banlist.New(nil),
		Metrics:             metrics.New(),
		Public:              pub,
		Verify:              verifySender,
		VerifyAddr:          "198.51.100.1:27900",
		ServerTimeout:       30 * time.Second,
		MetadataRefreshTime: time.Hour,
		Now:                 func() time.Time { return clock },
	})
	return e, pub, verify
}

func TestAddWithoutVerificationSocketNeverCompletes(t *testing.T) {
	e, pub, verify := newTestEngine(t, false, time.Unix(1000, 0))
	addr := clientAddr(7777)

	e.handlePublic(addr, addPacket())

	if verify != nil {
		t.Fatal("expected no verification socket")
	}
	if len(pub.sent) != 0 {
		t.Fatalf("expected no immediate response without verification, got %d packets", len(pub.sent))
	}
	if _, ok := e.dir.Get(toAddr(addr)); !ok {
		t.Fatal("expected an unverified record to exist")
	}
}

func TestAddThenVerifyFlow(t *testing.T) {
	now := time.Unix(1000, 0)
	e, pub, verify := newTestEngine(t, true, now)
	addr := clientAddr(7777)

	e.handlePublic(addr, addPacket())
	if len(verify.sent) != 1 {
		t.Fatalf("expected one outbound verification query, got %d", len(verify.sent))
	}
	if len(pub.sent) != 0 {
		t.Fatal("expected no public response before verification completes")
	}

	e.handleVerify(addr, serverQueryResponsePacket("1.0", 16, "Arena"))

	if len(pub.sent) != 1 {
		t.Fatalf("expected one ADD_RESPONSE after verification, got %d", len(pub.sent))
	}
	ok, err := wire.DecodeAddResponse(pub.last().data[2:])
	if err != nil || !ok {
		t.Fatalf("expected successful ADD_RESPONSE, got ok=%v err=%v", ok, err)
	}

	rec, _ := e.dir.Get(toAddr(addr))
	if !rec.Verified {
		t.Fatal("expected record to be verified")
	}
	if rec.Metadata.Name != "Arena" || rec.Metadata.MaxPlayers != 16 {
		t.Fatalf("unexpected metadata: %+v", rec.Metadata)
	}
}

func TestRepeatedAddFromVerifiedAddressIsIdempotent(t *testing.T) {
	now := time.Unix(1000, 0)
	e, pub, verify := newTestEngine(t, true, now)
	addr := clientAddr(7777)

	e.handlePublic(addr, addPacket())
	e.handleVerify(addr, serverQueryResponsePacket("1.0", 16, "Arena"))
	verify.sent = nil
	pub.sent = nil

	e.handlePublic(addr, addPacket())

	if len(verify.sent) != 0 {
		t.Fatalf("expected no new verification query for an already-verified address, got %d", len(verify.sent))
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected one ADD_RESPONSE, got %d", len(pub.sent))
	}
}

func TestBannedAddressIsDropped(t *testing.T) {
	e, pub, verify := newTestEngine(t, true, time.Unix(1000, 0))
	e.bans = banlist.New([]string{"203.0.113.10:*"})
	addr := clientAddr(7777)

	e.handlePublic(addr, addPacket())

	if len(pub.sent) != 0 || len(verify.sent) != 0 {
		t.Fatal("expected a banned ADD to produce no traffic at all")
	}
	if _, ok := e.dir.Get(toAddr(addr)); ok {
		t.Fatal("expected no record to be created for a banned address")
	}
}

func TestQueryOnlyReturnsVerifiedServers(t *testing.T) {
	now := time.Unix(1000, 0)
	e, pub, verify := newTestEngine(t, true, now)

	verifiedAddr := clientAddr(1)
	unverifiedAddr := clientAddr(2)

	e.handlePublic(verifiedAddr, addPacket())
	e.handleVerify(verifiedAddr, serverQueryResponsePacket("1.0", 8, "A"))
	e.handlePublic(unverifiedAddr, addPacket())
	verify.sent = nil
	pub.sent = nil

	queryer := clientAddr(9999)
	e.handlePublic(queryer, headerBytes(wire.TypeQuery))

	if len(pub.sent) != 1 {
		t.Fatalf("expected one QUERY_RESPONSE packet, got %d", len(pub.sent))
	}
	entries, err := wire.DecodeQueryResponse(pub.last().data[2:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0] != toAddr(verifiedAddr).String() {
		t.Fatalf("unexpected query result: %v", entries)
	}
}

func TestGetMetadataIncludesBanner(t *testing.T) {
	now := time.Unix(1000, 0)
	e, pub, verify := newTestEngine(t, true, now)
	addr := clientAddr(1)
	e.handlePublic(addr, addPacket())
	e.handleVerify(addr, serverQueryResponsePacket("1.0", 8, "A"))
	verify.sent = nil
	pub.sent = nil

	e.handlePublic(clientAddr(2), headerBytes(wire.TypeGetMetadata))

	if len(pub.sent) != 1 {
		t.Fatalf("expected one GET_METADATA_RESPONSE packet, got %d", len(pub.sent))
	}
	docs, err := wire.DecodeMetadataResponse(pub.last().data[2:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected one server doc plus a banner, got %d", len(docs))
	}
	var banner masterBanner
	if err := json.Unmarshal([]byte(docs[1]), &banner); err != nil {
		t.Fatalf("banner unmarshal: %v", err)
	}
	if banner.ServerCount != 1 || banner.ProtocolVersion != ProtocolVersion {
		t.Fatalf("unexpected banner: %+v", banner)
	}
}

func TestGetMetadataEmptyDirectorySendsNothing(t *testing.T) {
	e, pub, _ := newTestEngine(t, true, time.Unix(1000, 0))
	e.handlePublic(clientAddr(1), headerBytes(wire.TypeGetMetadata))
	if len(pub.sent) != 0 {
		t.Fatalf("expected no packets for an empty directory, got %d", len(pub.sent))
	}
}

func TestAgingRemovesHeartbeatTimeout(t *testing.T) {
	start := time.Unix(1000, 0)
	e, pub, verify := newTestEngine(t, true, start)
	addr := clientAddr(1)
	e.handlePublic(addr, addPacket())
	e.handleVerify(addr, serverQueryResponsePacket("1.0", 8, "A"))
	verify.sent = nil
	pub.sent = nil

	e.agingPass(start.Add(31 * time.Second))

	if _, ok := e.dir.Get(toAddr(addr)); ok {
		t.Fatal("expected record to be evicted after the heartbeat timeout")
	}
}

func TestAgingEscalatesToHolePunchThenFailsVerification(t *testing.T) {
	start := time.Unix(1000, 0)
	e, pub, verify := newTestEngine(t, true, start)
	addr := clientAddr(1)
	e.handlePublic(addr, addPacket())
	verify.sent = nil
	pub.sent = nil

	e.agingPass(start.Add(3 * time.Second))
	if len(pub.sent) != 1 {
		t.Fatalf("expected a self-directed hole punch notification at 3s, got %d packets", len(pub.sent))
	}
	rec, ok := e.dir.Get(toAddr(addr))
	if !ok || !rec.NeedsHolePunch {
		t.Fatal("expected NeedsHolePunch to be set")
	}
	pub.sent = nil

	e.agingPass(start.Add(6 * time.Second))
	if len(pub.sent) != 1 {
		t.Fatalf("expected exactly one ADD_RESPONSE(failure) at the 5s deadline, got %d", len(pub.sent))
	}
	ok2, err := wire.DecodeAddResponse(pub.last().data[2:])
	if err != nil || ok2 {
		t.Fatalf("expected a failure ADD_RESPONSE, got ok=%v err=%v", ok2, err)
	}
	if _, stillThere := e.dir.Get(toAddr(addr)); stillThere {
		t.Fatal("expected the record to be evicted after the verification deadline")
	}
}

func TestNATHolePunchForwardsOneDatagram(t *testing.T) {
	start := time.Unix(1000, 0)
	e, pub, verify := newTestEngine(t, true, start)
	target := clientAddr(1)
	e.handlePublic(target, addPacket())
	e.agingPass(start.Add(3 * time.Second))
	pub.sent = nil
	verify.sent = nil

	requester := clientAddr(2)
	payload := append(headerBytes(wire.TypeNATHolePunch), wire.EncodeString(toAddr(target).String())...)
	e.handlePublic(requester, payload)

	if len(pub.sent) != 1 {
		t.Fatalf("expected exactly one forwarded hole-punch datagram, got %d", len(pub.sent))
	}
	if pub.last().addr.Port != target.Port {
		t.Fatalf("expected the datagram to go to the target, got %v", pub.last().addr)
	}
}

func addPacket() []byte {
	return headerBytes(wire.TypeAdd)
}

func serverQueryResponsePacket(version string, maxPlayers uint8, name string) []byte {
	payload := wire.EncodeString(version)
	payload = append(payload, 0, 0, maxPlayers, 0, 0) // state, num_players, max_players, mode, mission
	payload = append(payload, wire.EncodeString(name)...)
	return append(headerBytes(wire.TypeVerifyQueryResp), payload...)
}
