package vidgate

import (
	"errors"

	"github.com/feitianbubu/vidgate/model"
)

// Common errors
var (
	ErrTaskNotFound        = model.ErrTaskNotFound
	ErrProviderUnavailable = model.ErrProviderUnavailable
	ErrNoLocker            = errors.New("redis poll serialization requires a locker")
)

// Error is the typed error returned by every gateway operation.
type Error = model.Error

// ErrorKind classifies an Error.
type ErrorKind = model.ErrorKind

const (
	KindValidation             = model.KindValidation
	KindUnsupportedCombination = model.KindUnsupportedCombination
	KindPayloadEncoding        = model.KindPayloadEncoding
	KindTransport              = model.KindTransport
	KindProviderRejection      = model.KindProviderRejection
	KindInvalidExtendSource    = model.KindInvalidExtendSource
	KindNotFound               = model.KindNotFound
	KindStorage                = model.KindStorage
	KindConfiguration          = model.KindConfiguration
)

// IsKind reports whether err is a gateway error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return model.IsKind(err, kind)
}

// IsNotFound reports whether err means the local task id is unknown.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}
