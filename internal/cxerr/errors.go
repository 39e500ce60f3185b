// Package cxerr holds the error taxonomy shared by every coprocessor engine.
package cxerr

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCurve         = errors.New("unknown curve")
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrInvalidParameterSize = errors.New("invalid parameter size")
	ErrInvalidPoint         = errors.New("invalid point")
	ErrArithmetic           = errors.New("arithmetic failure")
	ErrUnsupportedHash      = fmt.Errorf("%w: unsupported hash", ErrInvalidParameter)
)

// Status words returned to applications across the syscall boundary.
const (
	CodeOK                   uint32 = 0x00000000
	CodeInternalError        uint32 = 0xFFFFFF85
	CodeInvalidParameterSize uint32 = 0xFFFFFF86
	CodeInvalidParameter     uint32 = 0xFFFFFF88
	CodeNotInvertible        uint32 = 0xFFFFFF89
	CodeInvalidPoint         uint32 = 0xFFFFFFA2
	CodeInvalidCurve         uint32 = 0xFFFFFFA3
)

// Code maps err onto the device status word. Unclassified errors are internal errors.
func Code(err error) uint32 {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrUnknownCurve):
		return CodeInvalidCurve
	case errors.Is(err, ErrInvalidParameterSize):
		return CodeInvalidParameterSize
	case errors.Is(err, ErrInvalidParameter):
		return CodeInvalidParameter
	case errors.Is(err, ErrInvalidPoint):
		return CodeInvalidPoint
	case errors.Is(err, ErrArithmetic):
		return CodeNotInvertible
	default:
		return CodeInternalError
	}
}
