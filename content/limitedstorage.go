/*
Copyright The ORAS Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package content

import (
	"bytes"
	"context"
	"fmt"
	"io"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/errdef"
)

// LimitedStorage is a storage decorator that rejects any content whose
// declared or actual size exceeds a configured limit.
type LimitedStorage struct {
	Storage
	limit int64
}

// LimitStorage wraps storage so that content larger than limit bytes is
// rejected on Push, and content whose actual bytes exceed limit is rejected
// while reading from Fetch, regardless of what the descriptor claims.
func LimitStorage(storage Storage, limit int64) *LimitedStorage {
	return &LimitedStorage{
		Storage: storage,
		limit:   limit,
	}
}

// Push pushes the content, matching the expected descriptor, refusing to
// store more than limit bytes.
func (ls *LimitedStorage) Push(ctx context.Context, expected ocispec.Descriptor, content io.Reader) error {
	if expected.Size > ls.limit {
		return fmt.Errorf("content size %v exceeds size limit %v: %w",
			expected.Size, ls.limit, errdef.ErrSizeExceedsLimit)
	}

	buf := make([]byte, expected.Size)
	verifier := expected.Digest.Verifier()
	if _, err := io.ReadFull(io.TeeReader(content, verifier), buf); err != nil {
		return fmt.Errorf("read failed: %w", err)
	}
	if !verifier.Verified() {
		return ErrMismatchedDigest
	}

	return ls.Storage.Push(ctx, expected, bytes.NewReader(buf))
}

// Fetch fetches the content identified by the descriptor, failing the read
// once more than limit bytes have come out of it.
func (ls *LimitedStorage) Fetch(ctx context.Context, target ocispec.Descriptor) (io.ReadCloser, error) {
	rc, err := ls.Storage.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{
		Reader: &limitedReader{r: rc, remaining: ls.limit},
		Closer: rc,
	}, nil
}

// limitedReader reads from r, failing with errdef.ErrSizeExceedsLimit once
// more than `remaining` bytes have been requested.
type limitedReader struct {
	r         io.Reader
	remaining int64
	err       error
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	if l.remaining <= 0 {
		l.err = fmt.Errorf("content exceeds size limit: %w", errdef.ErrSizeExceedsLimit)
		return 0, l.err
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if err != nil {
		l.err = err
	}
	return n, err
}
