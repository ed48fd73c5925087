// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package objectclient

import "fmt"

// Kind is the client-facing error taxonomy, named after the condition
// rather than any particular backend's exception type so callers can
// branch without depending on the storage SDK.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindNoSuchUpload
	KindParameterMissing
	KindRequestSendError
	KindUnexpectedResponse
	KindSignInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindNoSuchUpload:
		return "NoSuchUpload"
	case KindParameterMissing:
		return "ParameterMissing"
	case KindRequestSendError:
		return "RequestSendError"
	case KindUnexpectedResponse:
		return "UnexpectedResponse"
	case KindSignInvalid:
		return "SignInvalid"
	default:
		return "Unknown"
	}
}

// ClientError is the structured error every Client method returns on
// failure: a Kind, whether the operation layer should retry it, and the
// backend's own exception name and message for logging.
type ClientError struct {
	Kind          Kind
	Retryable     bool
	ExceptionName string
	Message       string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("objectclient: %s: %s (%s)", e.Kind, e.Message, e.ExceptionName)
}

// Is supports errors.Is(err, objectclient.ErrNotModified) and similar
// sentinel comparisons by Kind, independent of the message/exception
// name carried by a particular failure.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind Kind, retryable bool, exceptionName, message string) *ClientError {
	return &ClientError{Kind: kind, Retryable: retryable, ExceptionName: exceptionName, Message: message}
}

// Sentinel errors for errors.Is comparisons against ClientError.Kind.
var (
	ErrNotFound      = &ClientError{Kind: KindNotFound}
	ErrNoSuchUpload  = &ClientError{Kind: KindNoSuchUpload}
	ErrNotModified   = &ClientError{Kind: KindUnknown, ExceptionName: "NotModified"}
)

// IsNotFound reports whether err is a ClientError of Kind NotFound.
func IsNotFound(err error) bool {
	ce, ok := err.(*ClientError)
	return ok && ce.Kind == KindNotFound
}

// IsNotModified reports whether err signals a conditional-request hit
// (304 Not Modified), a case that isn't a Kind of its own because it is
// success, not failure, to every caller except the one HEAD that issued
// the conditional request.
func IsNotModified(err error) bool {
	return err == ErrNotModified
}
