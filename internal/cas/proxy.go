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

package cas

import (
	"context"
	"fmt"
	"io"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/internal/ioutil"
)

// Proxy is a caching proxy for the storage.
// The first fetch call of a described content will read from the remote and
// cache the fetched content.
// The subsequent fetch call will read from the local cache.
type Proxy struct {
	content.ReadOnlyStorage
	Cache content.Storage

	// StopCaching disables the background cache writes done by Fetch, making
	// it behave like FetchCached while still checking the cache first.
	StopCaching bool
}

// NewProxy creates a proxy for the `base` storage, using the `cache` storage as
// the cache.
func NewProxy(base content.ReadOnlyStorage, cache content.Storage) *Proxy {
	return &Proxy{
		ReadOnlyStorage: base,
		Cache:           cache,
	}
}

// NewProxyWithLimit creates a proxy for the `base` storage identical to
// NewProxy, except that any content fetched from `base` that turns out to
// carry more than `limit` bytes fails with errdef.ErrSizeExceedsLimit.
func NewProxyWithLimit(base content.ReadOnlyStorage, cache content.Storage, limit int64) *Proxy {
	return NewProxy(&limitedReadStorage{ReadOnlyStorage: base, limit: limit}, cache)
}

// Fetch fetches the content identified by the descriptor.
func (p *Proxy) Fetch(ctx context.Context, target ocispec.Descriptor) (io.ReadCloser, error) {
	if rc, err := p.Cache.Fetch(ctx, target); err == nil {
		return rc, nil
	}

	rc, err := p.ReadOnlyStorage.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	if p.StopCaching {
		return rc, nil
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- p.Cache.Push(ctx, target, pr)
	}()
	closer := ioutil.CloserFunc(func() error {
		rcErr := rc.Close()
		if err := pw.Close(); err != nil {
			return err
		}
		if pushErr := <-done; pushErr != nil {
			return pushErr
		}
		return rcErr
	})

	return struct {
		io.Reader
		io.Closer
	}{
		Reader: io.TeeReader(rc, pw),
		Closer: closer,
	}, nil
}

// FetchCached fetches the content identified by the descriptor, preferring
// the cache but never writing back to it on a cache miss.
func (p *Proxy) FetchCached(ctx context.Context, target ocispec.Descriptor) (io.ReadCloser, error) {
	if rc, err := p.Cache.Fetch(ctx, target); err == nil {
		return rc, nil
	}
	return p.ReadOnlyStorage.Fetch(ctx, target)
}

// Exists returns true if the described content exists.
func (p *Proxy) Exists(ctx context.Context, target ocispec.Descriptor) (bool, error) {
	exists, err := p.Cache.Exists(ctx, target)
	if err == nil && exists {
		return true, nil
	}
	return p.ReadOnlyStorage.Exists(ctx, target)
}

// limitedReadStorage wraps a content.ReadOnlyStorage so that reading past
// limit bytes from a Fetch call fails with errdef.ErrSizeExceedsLimit,
// regardless of what the descriptor claims the content size to be.
type limitedReadStorage struct {
	content.ReadOnlyStorage
	limit int64
}

// Fetch fetches the content identified by the descriptor, enforcing limit on
// the number of bytes that can be read out of the returned reader.
func (ls *limitedReadStorage) Fetch(ctx context.Context, target ocispec.Descriptor) (io.ReadCloser, error) {
	rc, err := ls.ReadOnlyStorage.Fetch(ctx, target)
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
