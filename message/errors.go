package message

import "github.com/pkg/errors"

var (
	ErrHeaderNotFound = errors.New("message: header not found")
	ErrUnknownHeader  = errors.New("message: unknown header kind")
	ErrTooManyHeaders = errors.New("message: header count out of range")
	ErrUnknownType    = errors.New("message: unknown type id")
	ErrDuplicateType  = errors.New("message: type id already registered")
	ErrTypeMismatch   = errors.New("message: constructor returned a different type id")
	ErrShortBuffer    = errors.New("message: unexpected end of payload")
	ErrInvalidLength  = errors.New("message: invalid length prefix")
)
