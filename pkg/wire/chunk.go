package wire

// ChunkStrings packs strs into the smallest sequence of NUL-framed byte
// payloads such that each payload is at most maxLen bytes and no string is
// split across payloads. Behaviour is undefined (and this function panics)
// for a string whose encoded length alone exceeds maxLen, per spec.
func ChunkStrings(strs []string, maxLen int) [][]byte {
	var chunks [][]byte
	var current []byte

	for _, s := range strs {
		enc := EncodeString(s)
		if len(enc) > maxLen {
			panic("wire: string exceeds chunk size limit")
		}
		if len(current)+len(enc) > maxLen {
			if len(current) > 0 {
				chunks = append(chunks, current)
			}
			current = nil
		}
		current = append(current, enc...)
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
