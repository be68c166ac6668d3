package flatten

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ironsheep/docflat/internal/detection"
	"github.com/ironsheep/docflat/internal/imaging"
	"github.com/ironsheep/docflat/internal/perspective"
)

// Kind classifies a flattening failure.
type Kind string

const (
	KindImageDecode             Kind = "image_decode"
	KindNoDocumentBoundary      Kind = "no_document_boundary"
	KindAmbiguousCornerOrdering Kind = "ambiguous_corner_ordering"
	KindDegenerateTransform     Kind = "degenerate_transform"
	KindInvalidInput            Kind = "invalid_input"
	KindInternal                Kind = "internal"
)

// Error is a flattening failure with its stage and, for file input, the
// path that failed.
type Error struct {
	Kind Kind   `json:"kind"`
	Op   string `json:"op"`
	Path string `json:"path,omitempty"`
	Err  error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the same kind, so errors.Is(err,
// detection.ErrNoDocumentBoundary) holds even when Err is a wrapped
// variant.
func (e *Error) Is(target error) bool {
	if s := sentinel(e.Kind); s != nil {
		return target == s
	}
	return false
}

func sentinel(k Kind) error {
	switch k {
	case KindImageDecode:
		return imaging.ErrDecode
	case KindNoDocumentBoundary:
		return detection.ErrNoDocumentBoundary
	case KindAmbiguousCornerOrdering:
		return detection.ErrAmbiguousCornerOrdering
	case KindDegenerateTransform:
		return perspective.ErrDegenerateTransform
	}
	return nil
}

// wrap attaches kind and stage information to err, keeping an existing
// *Error intact.
func wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: KindOf(err), Op: op, Path: path, Err: err}
}

// KindOf classifies any error returned by this module.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	switch {
	case errors.Is(err, imaging.ErrDecode), errors.Is(err, imaging.ErrEmptyImage):
		return KindImageDecode
	case errors.Is(err, detection.ErrNoDocumentBoundary),
		errors.Is(err, imaging.ErrNoDivider), errors.Is(err, imaging.ErrNoContent):
		return KindNoDocumentBoundary
	case errors.Is(err, detection.ErrAmbiguousCornerOrdering):
		return KindAmbiguousCornerOrdering
	case errors.Is(err, perspective.ErrDegenerateTransform):
		return KindDegenerateTransform
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	}
	return KindInternal
}

// ErrInvalidInput marks caller mistakes such as a missing path.
var ErrInvalidInput = errors.New("invalid input")

// HTTPStatus maps an error to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case "":
		return http.StatusOK
	case KindImageDecode, KindInvalidInput:
		return http.StatusBadRequest
	case KindNoDocumentBoundary, KindAmbiguousCornerOrdering, KindDegenerateTransform:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
