package bridge

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
)

// Marshaling errors.
var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrNotInvocable     = errors.New("operation cannot be invoked directly")
	ErrArity            = errors.New("argument count mismatch")
	ErrArgKind          = errors.New("argument kind mismatch")
	ErrEmbeddedNUL      = errors.New("string argument contains a NUL byte")
	ErrShape            = errors.New("result shape mismatch")
)

// Callback is a native function pointer passed as a KindCallback argument.
type Callback uintptr

// encodeString returns s as UTF-8 bytes followed by a NUL terminator.
func encodeString(s string) ([]byte, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, ErrEmbeddedNUL
	}
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return buf, nil
}

// encoded holds the ABI form of a call's arguments. The byte buffers must
// stay reachable until the native call returns.
type encoded struct {
	bufs      [][]byte
	strs      []*byte
	ints      []int32
	callbacks []uintptr
}

func encodeArgs(op Operation, args []any) (*encoded, error) {
	if len(args) != op.Arity() {
		return nil, fmt.Errorf("%s: %w: got %d, want %d", op.Name, ErrArity, len(args), op.Arity())
	}
	enc := &encoded{}
	for i, kind := range op.Args {
		switch kind {
		case KindString:
			s, ok := args[i].(string)
			if !ok {
				return nil, argKindError(op, i, kind, args[i])
			}
			buf, err := encodeString(s)
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", op.Name, i, err)
			}
			enc.bufs = append(enc.bufs, buf)
			enc.strs = append(enc.strs, &buf[0])
		case KindInt:
			switch v := args[i].(type) {
			case int:
				if v < math.MinInt32 || v > math.MaxInt32 {
					return nil, fmt.Errorf("%s: argument %d: %w: %d overflows int32", op.Name, i, ErrArgKind, v)
				}
				enc.ints = append(enc.ints, int32(v))
			case int32:
				enc.ints = append(enc.ints, v)
			default:
				return nil, argKindError(op, i, kind, args[i])
			}
		case KindCallback:
			cb, ok := args[i].(Callback)
			if !ok {
				return nil, argKindError(op, i, kind, args[i])
			}
			enc.callbacks = append(enc.callbacks, uintptr(cb))
		default:
			return nil, argKindError(op, i, kind, args[i])
		}
	}
	return enc, nil
}

func argKindError(op Operation, i int, want Kind, got any) error {
	return fmt.Errorf("%s: argument %d: %w: want %s, got %T", op.Name, i, ErrArgKind, want, got)
}

// Invoke encodes args per the named operation's signature, calls the native
// entry point synchronously and decodes its result. The call blocks for as
// long as the engine takes.
func (b *Bridge) Invoke(name string, args ...any) (Result, error) {
	op, ok := Lookup(name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	if op.Shape == ShapeNone {
		return Result{}, fmt.Errorf("%w: %s", ErrNotInvocable, name)
	}
	enc, err := encodeArgs(op, args)
	if err != nil {
		return Result{}, err
	}

	b.logger.Debug().Str("op", op.Name).Msg("native call")

	res := Result{Shape: op.Shape}
	switch fn := b.natives[op.Symbol].(type) {
	case DataFunc:
		r := b.decodeData(fn(enc.strs[0]))
		res.Data, res.Error = r.Values()
	case MultipleDataFunc:
		r := b.decodeMultipleData(fn(enc.strs[0], enc.strs[1], enc.ints[0]))
		res.Data, res.OtherData, res.Error = r.Values()
	case RegisterFunc:
		res.Error = b.decodeError(fn(enc.strs[0], enc.strs[1], enc.callbacks[0], enc.ints[0]))
	case UnaryFunc:
		res.Error = b.decodeError(fn(enc.strs[0]))
	case BinaryFunc:
		res.Error = b.decodeError(fn(enc.strs[0], enc.strs[1]))
	default:
		return Result{}, fmt.Errorf("%w: %s has no bound entry point", ErrUnknownOperation, op.Name)
	}
	runtime.KeepAlive(enc)

	return res, nil
}

// CallData invokes an operation returning a DataResult.
func (b *Bridge) CallData(name string, args ...any) (DataResult, error) {
	res, err := b.invokeShape(name, ShapeData, args)
	if err != nil {
		return DataResult{}, err
	}
	return DataResult{Data: res.Data, Error: res.Error}, nil
}

// CallMultipleData invokes an operation returning a MultipleDataResult.
func (b *Bridge) CallMultipleData(name string, args ...any) (MultipleDataResult, error) {
	res, err := b.invokeShape(name, ShapeMultipleData, args)
	if err != nil {
		return MultipleDataResult{}, err
	}
	return MultipleDataResult{Data: res.Data, OtherData: res.OtherData, Error: res.Error}, nil
}

// CallError invokes an operation whose only result is an error string.
func (b *Bridge) CallError(name string, args ...any) (string, error) {
	res, err := b.invokeShape(name, ShapeError, args)
	if err != nil {
		return "", err
	}
	return res.Error, nil
}

func (b *Bridge) invokeShape(name string, shape Shape, args []any) (Result, error) {
	op, ok := Lookup(name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	if op.Shape != shape {
		return Result{}, fmt.Errorf("%s: %w: is %s, want %s", name, ErrShape, op.Shape, shape)
	}
	return b.Invoke(name, args...)
}
