package ioutil

import (
	"fmt"
	"io"
)

// ReadLimited reads r to completion, capped at limit bytes
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

// Snippet renders up to limit bytes of b for inclusion in error messages
// and logs, marking truncation.
func Snippet(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return fmt.Sprintf("%s... (%d bytes total)", b[:limit], len(b))
}
