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

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/internal/descriptor"
	"oras.land/oras-go/v2/internal/registryutil"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/internal/errutil"
)

// zeroDigest represents a digest that consists of zeros. zeroDigest is used
// for pinging Referrers API.
const zeroDigest = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// referrersState represents the state of Referrers API.
type referrersState = int32

const (
	// referrersStateUnknown represents an unknown state of Referrers API.
	referrersStateUnknown referrersState = iota
	// referrersStateSupported represents that the repository is known to
	// support Referrers API.
	referrersStateSupported
	// referrersStateUnsupported represents that the repository is known to
	// not support Referrers API.
	referrersStateUnsupported
)

// referrerOperation represents an operation on a referrer.
type referrerOperation = int32

const (
	// referrerOperationAdd represents an addition operation on a referrer.
	referrerOperationAdd referrerOperation = iota
	// referrerOperationRemove represents a removal operation on a referrer.
	referrerOperationRemove
)

// referrerChange represents a change on a referrer.
type referrerChange struct {
	referrer  ocispec.Descriptor
	operation referrerOperation
}

var (
	// ErrReferrersCapabilityAlreadySet is returned by SetReferrersCapability()
	// when the Referrers API capability has been already set.
	ErrReferrersCapabilityAlreadySet = errors.New("referrers capability cannot be changed once set")

	// errNoReferrerUpdate is returned by applyReferrerChanges() when there
	// is no any referrer update.
	errNoReferrerUpdate = errors.New("no referrer update")
)

// DanglingReferrersIndexError is returned when failed to delete old referrer index
// after newly updated referrer index being pushed.
// Only returned if referrer API is unavailable.

// ErrDanglingReferrersIndex is returned from an attempt to delete an old
// referrers index fails after a newly updated referrers index has been pushed.
// This error is only returned when the referrers API is unavailable.
type DanglingReferrersIndexError struct {
	InnerError   error
	IndexDigest  digest.Digest
	ReferrersTag string
	Subject      ocispec.Descriptor
}

// Error returns error msg of DanglingReferrerIndexError.
func (d *DanglingReferrersIndexError) Error() string {
	return fmt.Sprintf("failed to delete dangling referrers index %s for referrers tag %s: %s", d.IndexDigest.String(), d.ReferrersTag, d.InnerError.Error())
}

// Unwrap returns the inner error of DanglingReferrerIndexErr.
func (d *DanglingReferrersIndexError) Unwrap() error {
	return d.InnerError
}

// buildReferrersTag builds the referrers tag for the given manifest descriptor.
// Format: <algorithm>-<digest>
// Reference: https://github.com/opencontainers/distribution-spec/blob/v1.1.0-rc1/spec.md#unavailable-referrers-api
func buildReferrersTag(desc ocispec.Descriptor) (string, error) {
	if err := desc.Digest.Validate(); err != nil {
		return "", err
	}
	alg := desc.Digest.Algorithm().String()
	encoded := desc.Digest.Encoded()
	return alg + "-" + encoded, nil
}

// isReferrersFilterApplied checks annotations to see if requested is in the
// applied filter list.
func isReferrersFilterApplied(annotations map[string]string, requested string) bool {
	applied := annotations[ocispec.AnnotationReferrersFiltersApplied]
	if applied == "" || requested == "" {
		return false
	}
	filters := strings.Split(applied, ",")
	for _, f := range filters {
		if f == requested {
			return true
		}
	}
	return false
}

// filterReferrers filters a slice of referrers by artifactType in place.
// The returned slice contains matching referrers.
func filterReferrers(refs []ocispec.Descriptor, artifactType string) []ocispec.Descriptor {
	if artifactType == "" {
		return refs
	}
	var j int
	for i, ref := range refs {
		if ref.ArtifactType == artifactType {
			if i != j {
				refs[j] = ref
			}
			j++
		}
	}
	return refs[:j]
}

// applyReferrerChanges applies referrerChanges on referrers and returns the
// updated referrers.
// Returns errNoReferrerUpdate if there is no any referrers updates.
func applyReferrerChanges(referrers []ocispec.Descriptor, referrerChanges []referrerChange) ([]ocispec.Descriptor, error) {
	referrersMap := make(map[descriptor.Descriptor]int, len(referrers)+len(referrerChanges))
	updatedReferrers := make([]ocispec.Descriptor, 0, len(referrers)+len(referrerChanges))
	var updateRequired bool
	for _, r := range referrers {
		if content.Equal(r, ocispec.Descriptor{}) {
			// skip bad entry
			updateRequired = true
			continue
		}
		key := descriptor.FromOCI(r)
		if _, ok := referrersMap[key]; ok {
			// skip duplicates
			updateRequired = true
			continue
		}
		updatedReferrers = append(updatedReferrers, r)
		referrersMap[key] = len(updatedReferrers) - 1
	}

	// apply changes
	for _, change := range referrerChanges {
		key := descriptor.FromOCI(change.referrer)
		switch change.operation {
		case referrerOperationAdd:
			if _, ok := referrersMap[key]; !ok {
				// add distinct referrers
				updatedReferrers = append(updatedReferrers, change.referrer)
				referrersMap[key] = len(updatedReferrers) - 1
			}
		case referrerOperationRemove:
			if pos, ok := referrersMap[key]; ok {
				// remove referrers that are already in the map
				updatedReferrers[pos] = ocispec.Descriptor{}
				delete(referrersMap, key)
			}
		}
	}

	// skip unnecessary update
	if !updateRequired && len(referrersMap) == len(referrers) {
		// if the result referrer map contains the same content as the
		// original referrers, consider that there is no update on the
		// referrers.
		for _, r := range referrers {
			key := descriptor.FromOCI(r)
			if _, ok := referrersMap[key]; !ok {
				updateRequired = true
			}
		}
		if !updateRequired {
			return nil, errNoReferrerUpdate
		}
	}

	return removeEmptyDescriptors(updatedReferrers, len(referrersMap)), nil
}

// removeEmptyDescriptors in-place removes empty items from descs, given a hint
// of the number of non-empty descriptors.
func removeEmptyDescriptors(descs []ocispec.Descriptor, hint int) []ocispec.Descriptor {
	j := 0
	for i, r := range descs {
		if !content.Equal(r, ocispec.Descriptor{}) {
			if i > j {
				descs[j] = r
			}
			j++
		}
		if j == hint {
			break
		}
	}
	return descs[:j]
}

// loadReferrersState returns the current known state of the Referrers API
// for the repository.
func (r *Repository) loadReferrersState() referrersState {
	return atomic.LoadInt32(&r.referrersState)
}

// setReferrersState sets the state of the Referrers API for the repository.
// setReferrersState is go-routine safe, and can be called multiple times as
// long as the value is consistent; changing the value after it has been set
// returns ErrReferrersCapabilityAlreadySet.
func (r *Repository) setReferrersState(state referrersState) error {
	if !atomic.CompareAndSwapInt32(&r.referrersState, referrersStateUnknown, state) {
		if r.loadReferrersState() != state {
			return ErrReferrersCapabilityAlreadySet
		}
	}
	return nil
}

// SetReferrersCapability indicates whether the remote repository supports
// the Referrers API. Once set, the capability cannot be changed. This is
// useful for hinting the client when the capability of the remote repository
// is already known, saving a probing request.
//
// Reference: https://github.com/opencontainers/distribution-spec/blob/main/spec.md#listing-referrers
func (r *Repository) SetReferrersCapability(supported bool) error {
	state := referrersStateSupported
	if !supported {
		state = referrersStateUnsupported
	}
	if err := r.setReferrersState(state); err != nil {
		return fmt.Errorf("current referrers state: %v: %w", r.loadReferrersState() == referrersStateSupported, err)
	}
	return nil
}

// pingReferrers returns true if the repository is known, or discovered, to
// support the Referrers API. The discovery result is cached via
// setReferrersState so that later calls are free.
func (r *Repository) pingReferrers(ctx context.Context) (bool, error) {
	switch r.loadReferrersState() {
	case referrersStateSupported:
		return true, nil
	case referrersStateUnsupported:
		return false, nil
	}

	ref := r.Reference
	ref.Reference = zeroDigest
	ctx = registryutil.WithScopeHint(ctx, ref, auth.ActionPull)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, buildReferrersURL(r.PlainHTTP, ref, ""), nil)
	if err != nil {
		return false, err
	}
	resp, err := r.client().Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	supported := resp.StatusCode != http.StatusNotFound
	state := referrersStateUnsupported
	if supported {
		state = referrersStateSupported
	}
	if err := r.setReferrersState(state); err != nil {
		return false, err
	}
	return supported, nil
}

// Predecessors returns the descriptors of manifests directly referencing the
// given manifest descriptor, by delegating to Referrers.
func (r *Repository) Predecessors(ctx context.Context, desc ocispec.Descriptor) ([]ocispec.Descriptor, error) {
	var res []ocispec.Descriptor
	if err := r.Referrers(ctx, desc, "", func(referrers []ocispec.Descriptor) error {
		res = append(res, referrers...)
		return nil
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Referrers lists the descriptors of image or artifact manifests directly
// referencing the given manifest descriptor. fn is called for each page of
// the referrers result. If artifactType is not empty, only referrers of the
// same artifact type are fed to fn.
//
// If the remote registry does not implement the Referrers API, Referrers
// falls back to reading the referrers-tag-schema index, a manifest tagged
// `<algorithm>-<digest>` whose `manifests` field mirrors the result of the
// Referrers API.
//
// Reference: https://github.com/opencontainers/distribution-spec/blob/main/spec.md#listing-referrers
func (r *Repository) Referrers(ctx context.Context, desc ocispec.Descriptor, artifactType string, fn func(referrers []ocispec.Descriptor) error) error {
	if r.loadReferrersState() != referrersStateUnsupported {
		err := r.referrersByAPI(ctx, desc, artifactType, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, errdef.ErrUnsupported) {
			if err := r.setReferrersState(referrersStateUnsupported); err != nil {
				return err
			}
		} else {
			return err
		}
	}
	return r.referrersByTagSchema(ctx, desc, artifactType, fn)
}

// referrersByAPI lists referrers using the native Referrers API, walking
// pages via the Link header until exhausted.
func (r *Repository) referrersByAPI(ctx context.Context, desc ocispec.Descriptor, artifactType string, fn func(referrers []ocispec.Descriptor) error) error {
	ref := r.Reference
	ref.Reference = desc.Digest.String()
	ctx = registryutil.WithScopeHint(ctx, ref, auth.ActionPull)
	url := buildReferrersURL(r.PlainHTTP, ref, artifactType)
	var err error
	for err == nil {
		url, err = r.referrersPage(ctx, artifactType, fn, url)
	}
	if err != errNoLink {
		return err
	}
	if err := r.setReferrersState(referrersStateSupported); err != nil {
		return err
	}
	return nil
}

// referrersPage fetches and processes one page of the Referrers API result,
// returning the URL of the next page.
func (r *Repository) referrersPage(ctx context.Context, artifactType string, fn func(referrers []ocispec.Descriptor) error, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// The registry may simply not implement the Referrers API; fall back
		// to the tag schema rather than failing the whole operation.
		return "", errdef.ErrUnsupported
	}
	if resp.StatusCode != http.StatusOK {
		return "", errutil.ParseErrorResponse(resp)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != ocispec.MediaTypeImageIndex {
		return "", fmt.Errorf("unknown content returned (%s), expecting image index: %w", mediaType, errdef.ErrUnsupported)
	}

	var index ocispec.Index
	lr := limitReader(resp.Body, r.MaxMetadataBytes)
	if err := json.NewDecoder(lr).Decode(&index); err != nil {
		return "", fmt.Errorf("%s %q: failed to decode response: %w", resp.Request.Method, resp.Request.URL, err)
	}

	refs := index.Manifests
	if !isReferrersFilterApplied(index.Annotations, artifactType) {
		// the registry did not apply the filter; filter on the client side.
		refs = filterReferrers(refs, artifactType)
	}
	if len(refs) > 0 {
		if err := fn(refs); err != nil {
			return "", err
		}
	}

	return parseLink(resp)
}

// referrersByTagSchema lists referrers stored in the referrers-tag-schema
// fallback index.
func (r *Repository) referrersByTagSchema(ctx context.Context, desc ocispec.Descriptor, artifactType string, fn func(referrers []ocispec.Descriptor) error) error {
	referrersTag, err := buildReferrersTag(desc)
	if err != nil {
		return err
	}
	_, rc, err := r.Manifests().FetchReference(ctx, referrersTag)
	if err != nil {
		if errors.Is(err, errdef.ErrNotFound) {
			return nil
		}
		return err
	}
	defer rc.Close()

	var index ocispec.Index
	lr := limitReader(rc, r.MaxMetadataBytes)
	if err := json.NewDecoder(lr).Decode(&index); err != nil {
		return fmt.Errorf("failed to decode referrers index %s: %w", referrersTag, err)
	}

	refs := filterReferrers(index.Manifests, artifactType)
	if len(refs) > 0 {
		return fn(refs)
	}
	return nil
}

// indexReferrersForPush records referrer in the referrers-tag-schema index
// of subject, unless the remote registry natively supports the Referrers
// API. It is called after a manifest carrying a `subject` field has been
// successfully pushed.
func (r *Repository) indexReferrersForPush(ctx context.Context, referrer, subject ocispec.Descriptor) error {
	return r.updateReferrersIndex(ctx, subject, referrerChange{
		referrer:  referrer,
		operation: referrerOperationAdd,
	})
}

// indexReferrersForDelete removes referrer from the referrers-tag-schema
// index of subject. It is called before a manifest carrying a `subject`
// field is deleted.
func (r *Repository) indexReferrersForDelete(ctx context.Context, referrer, subject ocispec.Descriptor) error {
	return r.updateReferrersIndex(ctx, subject, referrerChange{
		referrer:  referrer,
		operation: referrerOperationRemove,
	})
}

// updateReferrersIndex pulls the current referrers-tag-schema index of
// subject, applies change, and pushes the result back under the same tag.
// If the remote registry natively supports the Referrers API, this is a
// no-op.
func (r *Repository) updateReferrersIndex(ctx context.Context, subject ocispec.Descriptor, change referrerChange) error {
	supported, err := r.pingReferrers(ctx)
	if err != nil {
		return err
	}
	if supported {
		return nil
	}

	referrersTag, err := buildReferrersTag(subject)
	if err != nil {
		return err
	}
	var oldDesc ocispec.Descriptor
	var referrers []ocispec.Descriptor
	oldDesc, rc, err := r.Manifests().FetchReference(ctx, referrersTag)
	switch {
	case err == nil:
		defer rc.Close()
		var index ocispec.Index
		lr := limitReader(rc, r.MaxMetadataBytes)
		if err := json.NewDecoder(lr).Decode(&index); err != nil {
			return fmt.Errorf("failed to decode referrers index %s: %w", referrersTag, err)
		}
		referrers = index.Manifests
	case errors.Is(err, errdef.ErrNotFound):
		// no existing index; start fresh.
	default:
		return err
	}

	updatedReferrers, err := applyReferrerChanges(referrers, []referrerChange{change})
	if errors.Is(err, errNoReferrerUpdate) {
		return nil
	}
	if err != nil {
		return err
	}

	index := ocispec.Index{
		MediaType: ocispec.MediaTypeImageIndex,
		Manifests: updatedReferrers,
	}
	index.SchemaVersion = 2
	indexBytes, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to marshal referrers index: %w", err)
	}
	newDesc := content.NewDescriptorFromBytes(indexBytes, ocispec.MediaTypeImageIndex)

	if err := r.Manifests().PushReference(ctx, newDesc, bytes.NewReader(indexBytes), referrersTag); err != nil {
		return fmt.Errorf("failed to push referrers index tagged by %s: %w", referrersTag, err)
	}

	if r.SkipReferrersGC || oldDesc.Digest == "" || oldDesc.Digest == newDesc.Digest {
		return nil
	}
	if err := r.Manifests().Delete(ctx, oldDesc); err != nil && !errors.Is(err, errdef.ErrNotFound) {
		return &DanglingReferrersIndexError{
			InnerError:   err,
			IndexDigest:  oldDesc.Digest,
			ReferrersTag: referrersTag,
			Subject:      subject,
		}
	}
	return nil
}

// peekManifestSubject reads up to expected.Size bytes from content, returning
// the bytes read and the manifest's `subject` field if present. Non-object
// manifests (e.g. Docker Schema 1) are tolerated: the subject is reported as
// nil rather than erroring.
func peekManifestSubject(expected ocispec.Descriptor, content io.Reader) ([]byte, *ocispec.Descriptor, error) {
	buf, err := io.ReadAll(io.LimitReader(content, expected.Size+1))
	if err != nil {
		return nil, nil, err
	}
	if int64(len(buf)) != expected.Size {
		return nil, nil, fmt.Errorf("mismatch content length %d: expect %d", len(buf), expected.Size)
	}
	var manifest struct {
		Subject *ocispec.Descriptor `json:"subject,omitempty"`
	}
	if err := json.Unmarshal(buf, &manifest); err != nil {
		return buf, nil, nil
	}
	return buf, manifest.Subject, nil
}
