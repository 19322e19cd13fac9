// Package core holds types shared across OptiInfra's collection, storage, and
// agent-runtime packages: the error taxonomy from spec §7 and small ID helpers.
package core

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Kind classifies a failure the way spec.md §7 does, so the HTTP edge can map
// it to a status code without re-deriving intent from an error string.
type Kind string

const (
	KindTransient         Kind = "transient_io"
	KindCredentialInvalid Kind = "credential_invalid"
	KindPartial           Kind = "partial"
	KindValidation        Kind = "validation"
	KindApprovalDenied    Kind = "approval_denied"
	KindQualityRegression Kind = "quality_regression"
	KindFatal             Kind = "fatal_internal"
	KindNotFound          Kind = "not_found"
	KindUnavailable       Kind = "dependency_unavailable"
)

// Error wraps an underlying cause with a Kind, a Component name (which
// subsystem failed), and an operator-facing Detail string. Most packages in
// this module return it across their public API; a few constructors and
// loaders (config, cache, embedding, the semantic backends, relational.Open)
// return plain wrapped errors instead, which KindOf reports as KindFatal.
type Error struct {
	Kind      Kind
	Component string
	Detail    string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Component, e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Component, e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a typed Error.
func New(kind Kind, component, detail string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Detail: detail, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindFatal if err does not
// carry a *Error anywhere in its chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// MultiError aggregates independent sub-query failures, used by provider
// adapters to report which sub-queries failed without aborting the whole
// collection attempt (spec.md §4.1's partial flag). It is a thin alias over
// hashicorp/go-multierror.Error so callers get its Unwrap() []error support
// and formatting for free.
type MultiError = multierror.Error

// NewMultiError drops nil errors and returns nil if nothing remains,
// otherwise wraps the rest in a MultiError.
func NewMultiError(errs []error) error {
	var merr *multierror.Error
	for _, err := range errs {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if merr == nil {
		return nil
	}
	return merr
}
