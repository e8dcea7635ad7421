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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"

	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials/trace"
)

// remoteCredentialsPrefix is the prefix of every docker credential helper
// executable name.
const remoteCredentialsPrefix = "docker-credential-"

// errCredentialsNotFoundMessage is the message a credential helper
// executable writes to its output when no credentials are stored for the
// requested server address.
//
// Reference: https://github.com/docker/docker-credential-helpers/blob/v0.8.2/credentials/error.go
const errCredentialsNotFoundMessage = "credentials not found in native keychain"

// Executer executes a command against an external credential helper
// executable following the protocol described at
// https://docs.docker.com/engine/reference/commandline/login/#credential-helper-protocol.
type Executer interface {
	// Execute runs action ("get", "store" or "erase") against the
	// executable, feeding it input on stdin, and returns its output.
	Execute(ctx context.Context, input io.Reader, action string) ([]byte, error)
}

// nativeStore implements a credentials store using native keychains and
// a credential helper executable, following the protocol used by the
// Docker command line.
type nativeStore struct {
	executer Executer
}

// NewNativeStore creates a new native store that uses a remote helper
// program to manage credentials.
//
// The argument of NewNativeStore can be the native keychain or any
// credential helper suffix. For example, if "docker-credential-pass" is
// the desired credential helper executable, the argument should be "pass".
func NewNativeStore(helperSuffix string) Store {
	return &nativeStore{
		executer: &shellExecuter{
			program: remoteCredentialsPrefix + helperSuffix,
		},
	}
}

// NewDefaultNativeStore returns a native store based on the platform-default
// credential helper, if one is available. If no default is known for the
// current platform, ok is false.
func NewDefaultNativeStore() (Store, bool) {
	suffix := getDefaultHelperSuffix()
	if suffix == "" {
		return nil, false
	}
	return NewNativeStore(suffix), true
}

// getDefaultHelperSuffix returns the suffix of the credential helper
// executable that is expected to be available by default on the current
// platform, or an empty string if there is none.
func getDefaultHelperSuffix() string {
	switch runtime.GOOS {
	case "darwin":
		return "osxkeychain"
	case "windows":
		return "wincred"
	case "linux":
		if _, err := exec.LookPath(remoteCredentialsPrefix + "pass"); err == nil {
			return "pass"
		}
	}
	return ""
}

// dockerCredentials mirrors the JSON payload exchanged with a credential
// helper executable.
//
// Reference: https://github.com/docker/docker-credential-helpers/blob/v0.8.2/credentials/credentials.go
type dockerCredentials struct {
	ServerURL string `json:"ServerURL"`
	Username  string `json:"Username"`
	Secret    string `json:"Secret"`
}

// refreshTokenUsername is the sentinel username a credential helper uses to
// signal that Secret holds an OAuth2 refresh token rather than a password.
const refreshTokenUsername = "<token>"

// Get retrieves credentials from the store for the given server address.
func (ns *nativeStore) Get(ctx context.Context, serverAddress string) (auth.Credential, error) {
	out, err := ns.executer.Execute(ctx, strings.NewReader(serverAddress), "get")
	if err != nil {
		if isCredentialsNotFoundError(err) {
			return auth.EmptyCredential, nil
		}
		return auth.EmptyCredential, err
	}

	var creds dockerCredentials
	if err := json.Unmarshal(out, &creds); err != nil {
		return auth.EmptyCredential, err
	}
	if creds.Username == refreshTokenUsername {
		return auth.Credential{RefreshToken: creds.Secret}, nil
	}
	return auth.Credential{
		Username: creds.Username,
		Password: creds.Secret,
	}, nil
}

// Put saves credentials into the store for the given server address.
func (ns *nativeStore) Put(ctx context.Context, serverAddress string, cred auth.Credential) error {
	creds := dockerCredentials{
		ServerURL: serverAddress,
		Username:  cred.Username,
		Secret:    cred.Password,
	}
	if cred.RefreshToken != "" {
		creds.Username = refreshTokenUsername
		creds.Secret = cred.RefreshToken
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	_, err = ns.executer.Execute(ctx, bytes.NewReader(data), "store")
	return err
}

// Delete removes credentials from the store for the given server address.
func (ns *nativeStore) Delete(ctx context.Context, serverAddress string) error {
	_, err := ns.executer.Execute(ctx, strings.NewReader(serverAddress), "erase")
	return err
}

// isCredentialsNotFoundError reports whether err is the sentinel error a
// credential helper returns when no credentials are stored for a server.
func isCredentialsNotFoundError(err error) bool {
	return strings.Contains(err.Error(), errCredentialsNotFoundMessage)
}

// shellExecuter is the production Executer that shells out to a
// docker-credential-<suffix> executable found on PATH.
type shellExecuter struct {
	program string
}

// Execute runs the configured executable, piping input to its stdin and
// returning its stdout, tracing the call if the context carries an
// ExecutableTrace.
func (e *shellExecuter) Execute(ctx context.Context, input io.Reader, action string) ([]byte, error) {
	name := e.program
	cmd := exec.CommandContext(ctx, name, action)
	cmd.Stdin = input
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	traceHook := trace.ContextExecutableTrace(ctx)
	if traceHook != nil && traceHook.ExecuteStart != nil {
		traceHook.ExecuteStart(name, action)
	}
	err := cmd.Run()
	if traceHook != nil && traceHook.ExecuteDone != nil {
		traceHook.ExecuteDone(name, action, err)
	}
	if err != nil {
		if stderr.Len() > 0 {
			return stderr.Bytes(), fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err)
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}
