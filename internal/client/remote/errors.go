package remote

import (
	"fmt"

	"github.com/campusfix/campusfix/internal/models"
)

// ErrorKind classifies a remote failure so callers can pattern-match on
// expected outcomes instead of inspecting transport errors.
type ErrorKind string

const (
	KindNetwork      ErrorKind = "network"
	KindUnauthorized ErrorKind = "unauthorized"
	KindBadRequest   ErrorKind = "bad_request"
	KindServer       ErrorKind = "server"
	KindDecode       ErrorKind = "decode"
)

// RemoteError is returned when the relational store rejected or could not
// service a request. The caller decides whether to retry, fall back to the
// local cache, or surface the failure.
type RemoteError struct {
	Op         string
	Collection models.Collection
	Kind       ErrorKind
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("remote %s %s (%s): %v", e.Op, e.Collection, e.Kind, e.Err)
	}
	return fmt.Sprintf("remote %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Transient reports whether retrying the same request may succeed.
func (e *RemoteError) Transient() bool {
	return e.Kind == KindNetwork || e.Kind == KindServer
}

func remoteErr(op string, c models.Collection, kind ErrorKind, err error) *RemoteError {
	return &RemoteError{Op: op, Collection: c, Kind: kind, Err: err}
}

// UploadError is returned when an object-storage write failed. Callers decide
// whether to proceed with an empty media reference or abort the parent write.
type UploadError struct {
	Bucket string
	Path   string
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s/%s: %v", e.Bucket, e.Path, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
