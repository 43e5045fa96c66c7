package transport

import "github.com/groundlift/groundlift/internal/obex"

func findString(headers []obex.Header, semantic byte) (string, bool) {
	for _, h := range headers {
		if h.Semantic() == semantic {
			if s, ok := h.String(); ok {
				return s, true
			}
		}
	}
	return "", false
}

func findInt32(headers []obex.Header, semantic byte) (uint32, bool) {
	for _, h := range headers {
		if h.Semantic() == semantic {
			if v, ok := h.Int32(); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// chunkSize computes the effective PUT body size (spec.md 4.4.2
// "Streaming"): the smaller of the peer's max packet size, the fixed file
// chunk cap, and the bytes still left to send.
func chunkSize(peerMaxPacketSize uint16, remaining int64) int {
	limit := int64(peerMaxPacketSize)
	if limit <= 0 || limit > obex.MaxFileChunk {
		limit = obex.MaxFileChunk
	}
	if remaining < limit {
		return int(remaining)
	}
	return int(limit)
}
