package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error wraps a storage operation failure with the operation name and
// the bucket/key it targeted.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("storage.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}

	if e.Bucket != "" {
		return fmt.Sprintf("storage.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}

	return fmt.Sprintf("storage.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewBucketError creates an Error scoped to a bucket operation.
func NewBucketError(op, bucket string, err error) *Error {
	return &Error{Op: op, Bucket: bucket, Err: err}
}

// NewObjectError creates an Error scoped to a single object operation.
func NewObjectError(op, bucket, key string, err error) *Error {
	return &Error{Op: op, Bucket: bucket, Key: key, Err: err}
}

// Sentinel kinds for storage failures. Backends map wire-level error
// codes onto these so callers can use errors.Is without knowing which
// backend produced the failure.
var (
	// ErrRegionConflict indicates the bucket operation was signed for or
	// constrained to the wrong region.
	ErrRegionConflict = errors.New("storage: region conflict")

	// ErrAccessDenied indicates the credentials lack permission.
	ErrAccessDenied = errors.New("storage: access denied")

	// ErrInvalidCredentials indicates the access key or signature was rejected.
	ErrInvalidCredentials = errors.New("storage: invalid credentials")

	// ErrBucketAlreadyExists indicates the bucket name is taken by another owner.
	ErrBucketAlreadyExists = errors.New("storage: bucket already exists")

	// ErrBucketNotFound indicates the bucket does not exist.
	ErrBucketNotFound = errors.New("storage: bucket not found")

	// ErrConnection indicates the endpoint could not be reached.
	ErrConnection = errors.New("storage: connection error")

	// ErrInvalidBucketName indicates the bucket name violates S3 naming rules.
	ErrInvalidBucketName = errors.New("storage: invalid bucket name")
)

// classify maps a backend error onto one of the package sentinels when a
// known wire code or transport condition applies. Context cancellation
// passes through untouched so callers can still match context errors
// through the chain.
func classify(code string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if sentinel := sentinelForCode(code); sentinel != nil {
		return fmt.Errorf("%w: %v", sentinel, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return err
}

// sentinelForCode maps S3 wire error codes to package sentinels.
// Returns nil for codes with no dedicated sentinel.
func sentinelForCode(code string) error {
	switch code {
	case "InvalidLocationConstraint", "IllegalLocationConstraintException", "AuthorizationHeaderMalformed":
		return ErrRegionConflict
	case "AccessDenied", "AllAccessDisabled":
		return ErrAccessDenied
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return ErrInvalidCredentials
	case "BucketAlreadyExists":
		return ErrBucketAlreadyExists
	case "NoSuchBucket":
		return ErrBucketNotFound
	}

	return nil
}
