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
	"bytes"
	"context"
	"io"
	"sync"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/internal/descriptor"
)

// Memory is a memory based CAS, used as the default cache of a Proxy.
type Memory struct {
	content sync.Map // map[descriptor.Descriptor][]byte
}

// NewMemory creates a new Memory CAS.
func NewMemory() *Memory {
	return &Memory{}
}

// Fetch fetches the content identified by the descriptor.
func (m *Memory) Fetch(_ context.Context, target ocispec.Descriptor) (io.ReadCloser, error) {
	key := descriptor.FromOCI(target)
	value, exists := m.content.Load(key)
	if !exists {
		return nil, errdef.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(value.([]byte))), nil
}

// Push pushes the content, matching the expected descriptor.
func (m *Memory) Push(_ context.Context, expected ocispec.Descriptor, reader io.Reader) error {
	key := descriptor.FromOCI(expected)
	if _, exists := m.content.Load(key); exists {
		return errdef.ErrAlreadyExists
	}

	buf, err := content.ReadAll(reader, expected)
	if err != nil {
		return err
	}

	m.content.LoadOrStore(key, buf)
	return nil
}

// Exists returns true if the described content exists.
func (m *Memory) Exists(_ context.Context, target ocispec.Descriptor) (bool, error) {
	key := descriptor.FromOCI(target)
	_, exists := m.content.Load(key)
	return exists, nil
}

// Map dumps the memory into a built-in map structure.
// Like other operations, calling Map() is go-routine safe. However, it is
// expected to only call it after all the write operations are done.
func (m *Memory) Map() map[descriptor.Descriptor]ocispec.Descriptor {
	res := make(map[descriptor.Descriptor]ocispec.Descriptor)
	m.content.Range(func(key, value any) bool {
		desc := key.(descriptor.Descriptor)
		res[desc] = ocispec.Descriptor{
			MediaType: desc.MediaType,
			Digest:    desc.Digest,
			Size:      desc.Size,
		}
		return true
	})
	return res
}
