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

	"oras.land/oras-go/v2/registry/remote/auth"
)

// storeWithFallbacks stores credentials into the primary store, and reads
// credentials from the primary store and, in order, the fallback stores
// until one returns a non-empty credential.
type storeWithFallbacks struct {
	stores []Store
}

// NewStoreWithFallbacks creates a new store with fallbacks.
//
// Put and Delete are called only on the primary store. Get is called on the
// primary store first, and if it returns an empty credential, Get is called
// successively on each fallback store until a non-empty credential is
// returned or every store has been tried.
func NewStoreWithFallbacks(primaryStore Store, fallbacks ...Store) Store {
	return &storeWithFallbacks{
		stores: append([]Store{primaryStore}, fallbacks...),
	}
}

// Get retrieves credentials from the primary store, falling back to the
// fallback stores in order until a non-empty credential is found.
func (sf *storeWithFallbacks) Get(ctx context.Context, serverAddress string) (auth.Credential, error) {
	for _, s := range sf.stores {
		cred, err := s.Get(ctx, serverAddress)
		if err != nil {
			return auth.EmptyCredential, err
		}
		if cred != auth.EmptyCredential {
			return cred, nil
		}
	}
	return auth.EmptyCredential, nil
}

// Put saves credentials into the primary store.
func (sf *storeWithFallbacks) Put(ctx context.Context, serverAddress string, cred auth.Credential) error {
	return sf.stores[0].Put(ctx, serverAddress, cred)
}

// Delete removes credentials from the primary store.
func (sf *storeWithFallbacks) Delete(ctx context.Context, serverAddress string) error {
	return sf.stores[0].Delete(ctx, serverAddress)
}
