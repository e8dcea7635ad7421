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

// Package docker defines the legacy Docker Image Manifest V2 Schema 2 media
// types, kept distinct from their OCI counterparts for content routing.
// Reference: https://distribution.github.io/distribution/spec/manifest-v2-2/
package docker

const (
	// MediaTypeManifest specifies the media type for a Docker image manifest.
	MediaTypeManifest = "application/vnd.docker.distribution.manifest.v2+json"

	// MediaTypeManifestList specifies the media type for a Docker manifest list.
	MediaTypeManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"

	// MediaTypeConfig specifies the media type for a Docker image config blob.
	MediaTypeConfig = "application/vnd.docker.container.image.v1+json"

	// MediaTypeForeignLayer specifies the media type for a foreign layer, i.e.
	// one not stored in the registry, as used by Windows base layers.
	MediaTypeForeignLayer = "application/vnd.docker.image.rootfs.foreign.diff.tar.gzip"
)
