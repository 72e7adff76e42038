// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package fory

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrMagicNumber indicates an invalid magic number in the data stream
	ErrMagicNumber = errors.New("fory: invalid magic number")
	// ErrBufferUnderflow is recorded when a read runs past the written region
	ErrBufferUnderflow = errors.New("fory: buffer underflow")
	// ErrTypeConflict is returned when a registration contradicts an earlier one
	ErrTypeConflict = errors.New("fory: conflicting type registration")
	// ErrMaxDepthExceeded guards against unbounded recursion when refs are not tracked
	ErrMaxDepthExceeded = errors.New("fory: max depth exceeded")
	// ErrMetaContextPoisoned is returned by a shared meta context after a failed call
	ErrMetaContextPoisoned = errors.New("fory: shared meta context poisoned by earlier failure")
	// ErrUnsupportedType is returned for kinds that have no wire form (chan, func)
	ErrUnsupportedType = errors.New("fory: unsupported type")

	ErrUnregisteredType      = errors.New("fory: unregistered type")
	ErrProtocolDesync        = errors.New("fory: protocol desync")
	ErrSchemaVersionMismatch = errors.New("fory: schema version mismatch")
	ErrUnconstructableType   = errors.New("fory: unconstructable type")
	ErrTypeMismatch          = errors.New("fory: type mismatch")
	ErrUnknownType           = errors.New("fory: unknown type")
)

// UnregisteredTypeError is returned on write in strict registration mode.
type UnregisteredTypeError struct {
	Type reflect.Type
}

func (e *UnregisteredTypeError) Error() string {
	return fmt.Sprintf("fory: type %v is not registered", e.Type)
}

func (e *UnregisteredTypeError) Unwrap() error { return ErrUnregisteredType }

// ProtocolDesyncError means the byte stream itself is malformed or out of
// sync with the reader. ReadObjects holds everything decoded before the fault.
type ProtocolDesyncError struct {
	Reason      string
	Offset      int
	ReadObjects []any
}

func (e *ProtocolDesyncError) Error() string {
	return fmt.Sprintf("fory: protocol desync at offset %d: %s", e.Offset, e.Reason)
}

func (e *ProtocolDesyncError) Unwrap() error { return ErrProtocolDesync }

func desyncf(buf *ByteBuffer, format string, args ...any) *ProtocolDesyncError {
	return &ProtocolDesyncError{Reason: fmt.Sprintf(format, args...), Offset: buf.ReaderIndex()}
}

// SchemaVersionMismatchError reports differing struct version hashes.
type SchemaVersionMismatchError struct {
	TypeName string
	Expected int32
	Actual   int32
}

func (e *SchemaVersionMismatchError) Error() string {
	return fmt.Sprintf("fory: schema version mismatch for %s: local hash %d, stream hash %d",
		e.TypeName, e.Expected, e.Actual)
}

func (e *SchemaVersionMismatchError) Unwrap() error { return ErrSchemaVersionMismatch }

// UnconstructableTypeError is returned when a back-reference targets an object
// whose codec could not register it before reading its contents.
type UnconstructableTypeError struct {
	Type  reflect.Type
	RefId int32
}

func (e *UnconstructableTypeError) Error() string {
	if e.Type == nil {
		return fmt.Sprintf("fory: reference %d points at an object still under construction", e.RefId)
	}
	return fmt.Sprintf("fory: reference %d points at a %v still under construction; its codec cannot pre-register instances",
		e.RefId, e.Type)
}

func (e *UnconstructableTypeError) Unwrap() error { return ErrUnconstructableType }

// DeserializationError wraps any other decode failure together with the
// partially built reference table.
type DeserializationError struct {
	Cause       error
	ReadObjects []any
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("fory: deserialization failed after %d objects: %v", len(e.ReadObjects), e.Cause)
}

func (e *DeserializationError) Unwrap() error { return e.Cause }

// wrapReadError attaches the partial reference table to err. Typed taxonomy
// errors keep their identity.
func wrapReadError(err error, readObjects []any) error {
	var desync *ProtocolDesyncError
	if errors.As(err, &desync) {
		desync.ReadObjects = readObjects
		return desync
	}
	var unconstructable *UnconstructableTypeError
	var mismatch *SchemaVersionMismatchError
	if errors.As(err, &unconstructable) || errors.As(err, &mismatch) {
		return err
	}
	return &DeserializationError{Cause: err, ReadObjects: readObjects}
}
