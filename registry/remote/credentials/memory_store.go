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

package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"oras.land/oras-go/v2/registry/remote/auth"
)

// memoryStore is a store that keeps credentials in memory.
type memoryStore struct {
	store sync.Map
}

// NewMemoryStore creates a new in-memory credentials store.
//
// The in-memory credentials store is not persisted across process restarts
// and is mainly used for testing purposes, or for credentials with a
// lifetime bound to a single process, e.g. credentials minted by a
// federated login flow.
func NewMemoryStore() Store {
	return &memoryStore{}
}

// NewMemoryStoreFromDockerConfig creates a new in-memory credentials store,
// pre-populated with the auths section of a docker configuration file given
// as raw JSON bytes.
func NewMemoryStoreFromDockerConfig(configBytes []byte) (Store, error) {
	var content struct {
		Auths map[string]json.RawMessage `json:"auths"`
	}
	if err := json.Unmarshal(configBytes, &content); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w: %v", ErrInvalidConfigFormat, err)
	}

	ms := &memoryStore{}
	for serverAddress, authCfgBytes := range content.Auths {
		var authCfg authConfig
		if err := json.Unmarshal(authCfgBytes, &authCfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal auth field for %s: %w: %v", serverAddress, ErrInvalidConfigFormat, err)
		}
		cred, err := authCfg.Credential()
		if err != nil {
			return nil, fmt.Errorf("failed to decode credential for %s: %w", serverAddress, err)
		}
		ms.store.Store(serverAddress, cred)
	}
	return ms, nil
}

// Get retrieves credentials from the store for the given server address.
func (ms *memoryStore) Get(_ context.Context, serverAddress string) (auth.Credential, error) {
	value, ok := ms.store.Load(serverAddress)
	if !ok {
		return auth.EmptyCredential, nil
	}
	return value.(auth.Credential), nil
}

// Put saves credentials into the store for the given server address.
func (ms *memoryStore) Put(_ context.Context, serverAddress string, cred auth.Credential) error {
	ms.store.Store(serverAddress, cred)
	return nil
}

// Delete removes credentials from the store for the given server address.
func (ms *memoryStore) Delete(_ context.Context, serverAddress string) error {
	ms.store.Delete(serverAddress)
	return nil
}
