package filebackend

import "bytes"

// frame prefixes payload with the anti-execution sentinel.
func frame(sentinel, payload []byte) []byte {
	out := make([]byte, 0, len(sentinel)+len(payload))
	out = append(out, sentinel...)
	return append(out, payload...)
}

// unframe strips the sentinel. Files written without it are returned as is.
func unframe(sentinel, raw []byte) []byte {
	if payload, ok := bytes.CutPrefix(raw, sentinel); ok {
		return payload
	}
	return raw
}
