package bridge

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// DataError mirrors the C struct returned by single-data entry points.
// Both pointers are independently nullable.
type DataError struct {
	Data  uintptr
	Error uintptr
}

// MultipleDataError mirrors the C struct returned by the get-config entry
// points. All three pointers are independently nullable.
type MultipleDataError struct {
	Data      uintptr
	OtherData uintptr
	Error     uintptr
}

// Go function types matching each native signature class. purego binds
// native symbols into values of these types; tests supply Go
// implementations directly.
type (
	DataFunc         func(session *byte) DataError
	MultipleDataFunc func(session, server *byte, flags int32) MultipleDataError
	RegisterFunc     func(session, config *byte, callback uintptr, flags int32) uintptr
	UnaryFunc        func(session *byte) uintptr
	BinaryFunc       func(session, value *byte) uintptr
	FreeFunc         func(ptr uintptr)
)

// Natives maps native symbol names to bound entry points.
type Natives map[string]any

// Symbols resolves native symbol addresses.
type Symbols interface {
	Lookup(name string) (uintptr, error)
}

type signature uint8

const (
	sigInvalid signature = iota
	sigData
	sigMultipleData
	sigRegister
	sigUnary
	sigBinary
	sigFree
)

func kindsEqual(a, b []Kind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func signatureOf(op Operation) signature {
	switch {
	case op.Shape == ShapeData && kindsEqual(op.Args, argsSession):
		return sigData
	case op.Shape == ShapeMultipleData && kindsEqual(op.Args, argsGetConfig):
		return sigMultipleData
	case op.Shape == ShapeError && kindsEqual(op.Args, argsRegister):
		return sigRegister
	case op.Shape == ShapeError && kindsEqual(op.Args, argsSession):
		return sigUnary
	case op.Shape == ShapeError && kindsEqual(op.Args, argsSessionValue):
		return sigBinary
	case op.Shape == ShapeNone && kindsEqual(op.Args, argsNativePointer):
		return sigFree
	default:
		return sigInvalid
	}
}

// matches reports whether fn has the Go type required by op.
func matches(op Operation, fn any) bool {
	switch signatureOf(op) {
	case sigData:
		f, ok := fn.(DataFunc)
		return ok && f != nil
	case sigMultipleData:
		f, ok := fn.(MultipleDataFunc)
		return ok && f != nil
	case sigRegister:
		f, ok := fn.(RegisterFunc)
		return ok && f != nil
	case sigUnary:
		f, ok := fn.(UnaryFunc)
		return ok && f != nil
	case sigBinary:
		f, ok := fn.(BinaryFunc)
		return ok && f != nil
	case sigFree:
		f, ok := fn.(FreeFunc)
		return ok && f != nil
	default:
		return false
	}
}

func bindOne(op Operation, sym uintptr) (any, error) {
	switch signatureOf(op) {
	case sigData:
		var fn DataFunc
		purego.RegisterFunc(&fn, sym)
		return fn, nil
	case sigMultipleData:
		var fn MultipleDataFunc
		purego.RegisterFunc(&fn, sym)
		return fn, nil
	case sigRegister:
		var fn RegisterFunc
		purego.RegisterFunc(&fn, sym)
		return fn, nil
	case sigUnary:
		var fn UnaryFunc
		purego.RegisterFunc(&fn, sym)
		return fn, nil
	case sigBinary:
		var fn BinaryFunc
		purego.RegisterFunc(&fn, sym)
		return fn, nil
	case sigFree:
		var fn FreeFunc
		purego.RegisterFunc(&fn, sym)
		return fn, nil
	default:
		return nil, fmt.Errorf("operation %s has no supported signature", op.Name)
	}
}

// Bind resolves every symbol of the signature table in lib and registers it
// as a typed Go function.
func Bind(lib Symbols) (Natives, error) {
	natives := make(Natives, len(Operations))
	for _, op := range Operations {
		sym, err := lib.Lookup(op.Symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", op.Name, err)
		}
		fn, err := bindOne(op, sym)
		if err != nil {
			return nil, err
		}
		natives[op.Symbol] = fn
	}
	return natives, nil
}
