package wire

import (
	"bytes"
	"fmt"
)

// EncodeString returns s as a NUL-terminated UTF-8 byte sequence.
func EncodeString(s string) []byte {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return buf
}

// DecodeString reads one NUL-terminated string from the front of data and
// returns it along with the remaining bytes. It fails if no NUL byte is
// present, matching the spec's "decode fails if no NUL is present" rule.
func DecodeString(data []byte) (s string, rest []byte, err error) {
	idx := bytes.IndexByte(data, 0)
	if idx < 0 {
		return "", nil, fmt.Errorf("wire: no NUL terminator in %d bytes", len(data))
	}
	return string(data[:idx]), data[idx+1:], nil
}

// DecodeStrings splits data into NUL-terminated strings until the buffer is
// exhausted. It fails if the final token lacks a terminator.
func DecodeStrings(data []byte) ([]string, error) {
	var out []string
	for len(data) > 0 {
		s, rest, err := DecodeString(data)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		data = rest
	}
	return out, nil
}
