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

package registry

import (
	"context"
	"io"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// ReferenceFetcher provides advanced fetch with the tag service, which can be
// used to fetch manifests directly by a reference without resolving it first.
type ReferenceFetcher interface {
	// FetchReference fetches the content identified by the reference.
	FetchReference(ctx context.Context, reference string) (desc ocispec.Descriptor, rc io.ReadCloser, err error)
}

// ReferencePusher provides advanced push with the tag service, which can be
// used to push a manifest and tag it with a reference in one operation.
type ReferencePusher interface {
	// PushReference pushes the manifest with a reference tag.
	PushReference(ctx context.Context, expected ocispec.Descriptor, content io.Reader, reference string) error
}

// ReferrerFinder provides the ability to find referrers of a given manifest,
// as specified by the OCI 1.1 Referrers API.
type ReferrerFinder interface {
	// Referrers lists the descriptors of manifests directly referencing the
	// given manifest descriptor. fn is called for each page of the results.
	// When artifactType is not empty, only referrers of the given artifact
	// type are returned.
	Referrers(ctx context.Context, desc ocispec.Descriptor, artifactType string, fn func(referrers []ocispec.Descriptor) error) error
}

// ManifestStore provides access to the manifest CAS of a repository, with the
// added ability to fetch and push by tag/digest reference.
type ManifestStore interface {
	BlobStore
	ReferenceFetcher
	ReferencePusher
}

// Mounter provides the ability to mount a blob from one repository to
// another without needing to pull content down from the source repository
// and push it back up to the destination.
type Mounter interface {
	// Mount makes the blob identified by desc in fromRepo available in the
	// repository signified by the receiver without fetching and pushing the
	// blob content. If the registry does not implement mounting, or the
	// cross-repository mount fails, getContent is invoked to obtain the
	// content and the blob is pushed normally.
	Mount(ctx context.Context, desc ocispec.Descriptor, fromRepo string, getContent func() (io.ReadCloser, error)) error
}
