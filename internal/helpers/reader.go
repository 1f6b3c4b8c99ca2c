package helpers

import (
	"fmt"
	"io"
)

// ReadAllAndClose reads at most limit bytes from r and closes it. A body
// longer than limit is an error rather than a silent truncation.
func ReadAllAndClose(r io.ReadCloser, limit int64) ([]byte, error) {
	defer r.Close()
	if limit <= 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return b, nil
}
