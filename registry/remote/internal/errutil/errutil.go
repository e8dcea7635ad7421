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

// Package errutil decodes distribution-spec error responses into typed
// errors that callers can inspect with errors.As / errors.Is.
package errutil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"oras.land/oras-go/v2/registry/remote/errcode"
)

// maxErrorBytes specifies the default limit on how many response bytes are
// allowed in the server's error response.
// A typical error message is around 200 bytes. Hence, 8 KiB should be
// sufficient.
const maxErrorBytes int64 = 8 * 1024 // 8 KiB

// ParseErrorResponse parses the error returned by the remote registry.
func ParseErrorResponse(resp *http.Response) error {
	resultErr := &errcode.ErrorResponse{
		Method:     resp.Request.Method,
		URL:        resp.Request.URL,
		StatusCode: resp.StatusCode,
	}
	var body struct {
		Errors errcode.Errors `json:"errors"`
	}
	lr := io.LimitReader(resp.Body, maxErrorBytes)
	if err := json.NewDecoder(lr).Decode(&body); err != nil {
		return resultErr
	}
	resultErr.Errors = body.Errors
	return resultErr
}

// IsErrorCode returns true if err is an errcode.Error, errcode.Errors or
// errcode.ErrorResponse carrying exactly the given code.
func IsErrorCode(err error, code string) bool {
	var ec errcode.Error
	if errors.As(err, &ec) {
		return ec.Code == code
	}

	var ecs errcode.Errors
	if errors.As(err, &ecs) {
		return len(ecs) == 1 && ecs[0].Code == code
	}

	var errResp *errcode.ErrorResponse
	if errors.As(err, &errResp) {
		return len(errResp.Errors) == 1 && errResp.Errors[0].Code == code
	}

	return false
}
