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

import "reflect"

// TypeId is the wire identifier of a type. Internal types occupy the low
// byte; registered user types carry their id in the upper bits:
// (userId << 8) | internalKind.
type TypeId = uint32

const (
	// UNKNOWN marks a field whose concrete type is carried at runtime
	UNKNOWN TypeId = 0
	BOOL    TypeId = 1
	INT8    TypeId = 2
	INT16   TypeId = 3
	// INT32 is written as a zigzag varint
	INT32 TypeId = 4
	// INT64 is written as a zigzag varint
	INT64  TypeId = 6
	FLOAT  TypeId = 10
	DOUBLE TypeId = 11
	// STRING is a varuint length followed by UTF-8 bytes
	STRING TypeId = 12
	// STRUCT a struct registered by id, laid out by its local field order
	STRUCT TypeId = 15
	// COMPATIBLE_STRUCT a struct registered by id whose TypeDef travels with it
	COMPATIBLE_STRUCT TypeId = 16
	// NAMED_STRUCT a struct identified by namespace and name
	NAMED_STRUCT TypeId = 17
	// NAMED_COMPATIBLE_STRUCT a named or anonymous struct whose TypeDef travels with it
	NAMED_COMPATIBLE_STRUCT TypeId = 18
	// EXT a type written by a registered ExtensionSerializer
	EXT  TypeId = 19
	LIST TypeId = 21
	MAP  TypeId = 23
	// BINARY variable-length bytes
	BINARY TypeId = 28

	UINT8  TypeId = 100
	UINT16 TypeId = 101
	UINT32 TypeId = 102
	UINT64 TypeId = 103
)

// internalTypeId strips the user id part of a composite type id.
func internalTypeId(id TypeId) TypeId {
	if id >= UINT8 && id <= UINT64 {
		return id
	}
	return id & 0xff
}

// IsNamespacedType reports whether values of this id are resolved by name.
func IsNamespacedType(id TypeId) bool {
	switch internalTypeId(id) {
	case NAMED_STRUCT, NAMED_COMPATIBLE_STRUCT:
		return true
	default:
		return false
	}
}

func isStructTypeId(id TypeId) bool {
	switch internalTypeId(id) {
	case STRUCT, COMPATIBLE_STRUCT, NAMED_STRUCT, NAMED_COMPATIBLE_STRUCT:
		return true
	}
	return false
}

func isCompatibleTypeId(id TypeId) bool {
	switch internalTypeId(id) {
	case COMPATIBLE_STRUCT, NAMED_COMPATIBLE_STRUCT:
		return true
	}
	return false
}

func isPrimitiveTypeId(id TypeId) bool {
	switch id {
	case BOOL, INT8, INT16, INT32, INT64, FLOAT, DOUBLE, UINT8, UINT16, UINT32, UINT64:
		return true
	}
	return false
}

func isVarintTypeId(id TypeId) bool {
	switch id {
	case INT32, INT64, UINT32, UINT64:
		return true
	}
	return false
}

func primitiveSize(id TypeId) int {
	switch id {
	case BOOL, INT8, UINT8:
		return 1
	case INT16, UINT16:
		return 2
	case INT32, FLOAT, UINT32:
		return 4
	case INT64, DOUBLE, UINT64:
		return 8
	}
	return 0
}

var (
	interfaceType    = reflect.TypeOf((*any)(nil)).Elem()
	byteSliceType    = reflect.TypeOf([]byte(nil))
	stringType       = reflect.TypeOf("")
	unknownStructTyp = reflect.TypeOf(UnknownStruct{})
)

// builtinTypes maps internal scalar ids to the Go type they decode into when
// no local declaration is available.
var builtinTypes = map[TypeId]reflect.Type{
	BOOL:   reflect.TypeOf(false),
	INT8:   reflect.TypeOf(int8(0)),
	INT16:  reflect.TypeOf(int16(0)),
	INT32:  reflect.TypeOf(int32(0)),
	INT64:  reflect.TypeOf(int64(0)),
	FLOAT:  reflect.TypeOf(float32(0)),
	DOUBLE: reflect.TypeOf(float64(0)),
	STRING: stringType,
	BINARY: byteSliceType,
	UINT8:  reflect.TypeOf(uint8(0)),
	UINT16: reflect.TypeOf(uint16(0)),
	UINT32: reflect.TypeOf(uint32(0)),
	UINT64: reflect.TypeOf(uint64(0)),
}

// kindTypeId returns the builtin id for scalar kinds, or UNKNOWN.
func kindTypeId(t reflect.Type) TypeId {
	switch t.Kind() {
	case reflect.Bool:
		return BOOL
	case reflect.Int8:
		return INT8
	case reflect.Int16:
		return INT16
	case reflect.Int32:
		return INT32
	case reflect.Int64, reflect.Int:
		return INT64
	case reflect.Uint8:
		return UINT8
	case reflect.Uint16:
		return UINT16
	case reflect.Uint32:
		return UINT32
	case reflect.Uint64, reflect.Uint:
		return UINT64
	case reflect.Float32:
		return FLOAT
	case reflect.Float64:
		return DOUBLE
	case reflect.String:
		return STRING
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return BINARY
		}
		return LIST
	case reflect.Array:
		return LIST
	case reflect.Map:
		return MAP
	}
	return UNKNOWN
}
