package znsite

import (
	"context"
	"errors"
	"fmt"

	"zeronode/pkg/znprotocol"
)

// rangeChunkSize is the per-request read_bytes used for files larger than
// 512 kB.
const rangeChunkSize = 524288

// largeFileThreshold is the size above which downloads are chunked into
// repeated range requests instead of a single getFile call.
const largeFileThreshold = 512 * 1024

// maxSizeMismatchRetries bounds how many times a declared/observed size
// mismatch restarts the download from offset 0 before giving up.
const maxSizeMismatchRetries = 3

// ErrSizeMismatchExhausted is returned when a file's declared size keeps
// disagreeing with what the peer actually serves across every retry.
var ErrSizeMismatchExhausted = errors.New("znsite: file size mismatch persisted across retries")

// fetchFile downloads innerPath in full from client, either as a single
// getFile call (small files) or as a sequence of rangeChunkSize reads.
// A mismatch between the declared size and what a peer actually reports
// restarts the whole download from location 0 using the corrected size.
func fetchFile(ctx context.Context, client *znprotocol.Client, site, innerPath string, declaredSize int64) ([]byte, error) {
	if declaredSize <= largeFileThreshold {
		res, err := client.GetFile(ctx, site, innerPath, 0, declaredSize)
		if err != nil {
			return nil, fmt.Errorf("znsite: fetch %s: %w", innerPath, err)
		}
		return res.Body, nil
	}

	size := declaredSize
	for attempt := 0; attempt < maxSizeMismatchRetries; attempt++ {
		buf := make([]byte, 0, size)
		var location int64
		mismatched := false

		for location < size {
			res, err := client.GetFile(ctx, site, innerPath, location, rangeChunkSize)
			if err != nil {
				return nil, fmt.Errorf("znsite: range fetch %s at %d: %w", innerPath, location, err)
			}
			if res.Size != 0 && res.Size != size {
				size = res.Size
				mismatched = true
				break
			}
			buf = append(buf, res.Body...)
			location += int64(len(res.Body))
			if len(res.Body) == 0 {
				return nil, fmt.Errorf("znsite: range fetch %s: peer returned empty chunk before completion", innerPath)
			}
		}
		if mismatched {
			continue
		}
		return buf, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSizeMismatchExhausted, innerPath)
}
