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

package oras

import "oras.land/oras-go/v2/content"

// Target is a CAS that supports tagging descriptors by reference, the
// minimal interface accepted by Copy as both the source and destination.
type Target interface {
	content.Storage
	content.TagResolver
}

// ReadOnlyTarget is a read-only Target, the minimal interface accepted by
// Resolve and Fetch as the source.
type ReadOnlyTarget interface {
	content.ReadOnlyStorage
	content.Resolver
}

// GraphTarget is a Target that supports direct predecessor node finding,
// the minimal interface accepted by ExtendedCopy as the destination.
type GraphTarget interface {
	Target
	content.PredecessorFinder
}

// ReadOnlyGraphTarget is a read-only GraphTarget, the minimal interface
// accepted by ExtendedCopy as the source.
type ReadOnlyGraphTarget interface {
	ReadOnlyTarget
	content.PredecessorFinder
}
