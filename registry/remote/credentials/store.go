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
	"sync"

	"oras.land/oras-go/v2/registry/remote/auth"
)

// StoreOptions provide options for NewStore.
type StoreOptions struct {
	// AllowPlaintextPut allows saving credentials in plaintext in the
	// underlying docker configuration file, when no credential helper is
	// configured for the server address being written to.
	AllowPlaintextPut bool

	// DetectDefaultNativeStore allows detecting the platform-default native
	// store when no credsStore or credHelpers entry applies to a server
	// address being read from or written to.
	DetectDefaultNativeStore bool
}

// dynamicStore dispatches to a FileStore or a nativeStore based on the
// credsStore / credHelpers settings of an underlying docker configuration
// file, following the same resolution order as the Docker command line.
type dynamicStore struct {
	config  Config
	options StoreOptions

	detectedCredsStoreOnce sync.Once
	detectedCredsStore     string
}

// NewStore returns a Store that reads the docker configuration file at
// configPath on every resolution, dispatching Get/Put/Delete calls to a
// file-based or a native credential helper store as configured.
func NewStore(configPath string, opts StoreOptions) (*dynamicStore, error) {
	cfg, err := newConfigJson(configPath)
	if err != nil {
		return nil, err
	}
	return &dynamicStore{
		config:  cfg,
		options: opts,
	}, nil
}

// NewStoreFromDocker returns a Store based on the default docker
// configuration file location, honoring the DOCKER_CONFIG environment
// variable.
func NewStoreFromDocker(opts StoreOptions) (*dynamicStore, error) {
	path, err := getDockerConfigPath()
	if err != nil {
		return nil, err
	}
	return NewStore(path, opts)
}

// Get retrieves credentials from the store for the given server address.
func (ds *dynamicStore) Get(ctx context.Context, serverAddress string) (auth.Credential, error) {
	return ds.getStore(serverAddress).Get(ctx, serverAddress)
}

// Put saves credentials into the store for the given server address.
func (ds *dynamicStore) Put(ctx context.Context, serverAddress string, cred auth.Credential) error {
	return ds.getStore(serverAddress).Put(ctx, serverAddress, cred)
}

// Delete removes credentials from the store for the given server address.
func (ds *dynamicStore) Delete(ctx context.Context, serverAddress string) error {
	return ds.getStore(serverAddress).Delete(ctx, serverAddress)
}

// IsAuthConfigured returns whether there is authentication configured in the
// underlying docker configuration file.
func (ds *dynamicStore) IsAuthConfigured() bool {
	return ds.config.IsAuthConfigured()
}

// ConfigPath returns the path of the underlying docker configuration file.
func (ds *dynamicStore) ConfigPath() string {
	return ds.config.Path()
}

// getStore resolves the Store that should serve serverAddress, in the same
// order as the Docker command line: a per-registry credHelpers entry first,
// then the global credsStore entry, then the detected platform-default
// native store (if enabled), and finally the underlying file store itself.
func (ds *dynamicStore) getStore(serverAddress string) Store {
	if helper := ds.getHelperSuffix(serverAddress); helper != "" {
		return NewNativeStore(helper)
	}
	fs := newFileStore(ds.config)
	fs.DisablePut = !ds.options.AllowPlaintextPut
	return fs
}

// getHelperSuffix returns the credential helper suffix that should be used
// for serverAddress, or an empty string if none applies.
func (ds *dynamicStore) getHelperSuffix(serverAddress string) string {
	if helper := ds.config.GetCredentialHelper(serverAddress); helper != "" {
		return helper
	}
	if store := ds.config.CredentialsStore(); store != "" {
		return store
	}
	if ds.options.DetectDefaultNativeStore {
		ds.detectedCredsStoreOnce.Do(func() {
			ds.detectedCredsStore = getDefaultHelperSuffix()
		})
		return ds.detectedCredsStore
	}
	return ""
}
