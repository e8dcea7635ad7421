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

package ioutil

import (
	"io"
	"os"
)

// Ingest writes the content of r into a temporary file created inside dir
// and returns its path. The caller is responsible for renaming or removing
// the returned file; Ingest never writes to the destination config path
// directly so a crash mid-write cannot corrupt it.
func Ingest(dir string, r io.Reader) (path string, returnErr error) {
	tmp, err := os.CreateTemp(dir, "ingest-*")
	if err != nil {
		return "", err
	}
	defer func() {
		if err := tmp.Close(); err != nil && returnErr == nil {
			returnErr = err
		}
	}()
	defer func() {
		if returnErr != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return "", err
	}
	return tmp.Name(), nil
}
