package wire

import (
	"encoding/binary"
	"fmt"
)

// DecodeHeader reads the 16-bit type header and returns it with the
// remaining payload.
func DecodeHeader(data []byte) (Type, []byte, error) {
	if len(data) < 2 {
		return 0, nil, fmt.Errorf("wire: packet too short for header (%d bytes)", len(data))
	}
	return Type(binary.BigEndian.Uint16(data)), data[2:], nil
}

func header(t Type) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(t))
	return buf
}

// EncodeAddResponse builds an ADD_RESPONSE packet.
func EncodeAddResponse(success bool) []byte {
	buf := header(TypeAddResponse)
	flag := make([]byte, 2)
	if success {
		binary.BigEndian.PutUint16(flag, 1)
	}
	return append(buf, flag...)
}

// DecodeAddResponse parses an ADD_RESPONSE payload (post-header).
func DecodeAddResponse(payload []byte) (bool, error) {
	if len(payload) != 2 {
		return false, fmt.Errorf("wire: ADD_RESPONSE payload must be 2 bytes, got %d", len(payload))
	}
	return binary.BigEndian.Uint16(payload) == 1, nil
}

// EncodeQueryResponse builds one QUERY_RESPONSE packet from an already
// chunked payload (see ChunkStrings).
func EncodeQueryResponse(chunk []byte) []byte {
	return append(header(TypeQueryResponse), chunk...)
}

// DecodeQueryResponse parses a QUERY_RESPONSE payload into its strings.
func DecodeQueryResponse(payload []byte) ([]string, error) {
	return DecodeStrings(payload)
}

// EncodeMetadataResponse builds one GET_METADATA_RESPONSE packet from an
// already chunked payload.
func EncodeMetadataResponse(chunk []byte) []byte {
	return append(header(TypeMetadataResp), chunk...)
}

// DecodeMetadataResponse parses a GET_METADATA_RESPONSE payload into its
// NUL-framed JSON documents.
func DecodeMetadataResponse(payload []byte) ([]string, error) {
	return DecodeStrings(payload)
}

// EncodeSignStartResponse builds a SIGN_START_RESPONSE packet: the raw
// nonce immediately followed by the opaque signature bytes.
func EncodeSignStartResponse(nonce, signature []byte) []byte {
	buf := header(TypeSignStartResp)
	buf = append(buf, nonce...)
	buf = append(buf, signature...)
	return buf
}

// EncodeSignEndResponse builds a SIGN_END_RESPONSE packet carrying the
// opaque end signature.
func EncodeSignEndResponse(signature []byte) []byte {
	return append(header(TypeSignEndResp), signature...)
}

// DecodeSignEnd splits a SIGN_END payload into its 20-byte demo hash and
// the opaque start message that follows it.
func DecodeSignEnd(payload []byte) (hash [20]byte, startMessage []byte, err error) {
	if len(payload) < 20 {
		return hash, nil, fmt.Errorf("wire: SIGN_END payload too short (%d bytes)", len(payload))
	}
	copy(hash[:], payload[:20])
	return hash, payload[20:], nil
}

// DecodeNATHolePunchTarget parses the NUL-terminated target address string
// out of a client-originated NAT_HOLE_PUNCH payload.
func DecodeNATHolePunchTarget(payload []byte) (string, error) {
	target, _, err := DecodeString(payload)
	if err != nil {
		return "", err
	}
	return target, nil
}

// EncodeNATHolePunch builds a NAT_HOLE_PUNCH packet forwarded to a target,
// carrying the NUL-terminated "host:port" of the other party.
func EncodeNATHolePunch(addr string) []byte {
	return append(header(TypeNATHolePunch), EncodeString(addr)...)
}

// EncodeVerifyQuery builds the bare query the master sends on the
// verification socket.
func EncodeVerifyQuery() []byte {
	return header(TypeVerifyQuery)
}

// DecodeServerQueryResponse parses a game server's answer to a query:
// a version string, five fixed-width status bytes (state, num_players,
// max_players, mode, mission — only max_players is retained by callers),
// and a NUL-terminated server name.
func DecodeServerQueryResponse(payload []byte) (version string, maxPlayers uint8, name string, err error) {
	version, rest, err := DecodeString(payload)
	if err != nil {
		return "", 0, "", fmt.Errorf("wire: decoding version: %w", err)
	}
	if len(rest) < 5 {
		return "", 0, "", fmt.Errorf("wire: query response missing status block (%d bytes left)", len(rest))
	}
	maxPlayers = rest[2]
	rest = rest[5:]
	name, _, err = DecodeString(rest)
	if err != nil {
		return "", 0, "", fmt.Errorf("wire: decoding server name: %w", err)
	}
	return version, maxPlayers, name, nil
}
