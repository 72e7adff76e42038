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
	"fmt"
	"reflect"
)

// primitiveSerializer handles every numeric and bool kind. Values are
// written raw, with no ref flag, when they sit in the primitive field group.
type primitiveSerializer struct {
	typeId TypeId
}

func (s primitiveSerializer) TypeId() TypeId       { return s.typeId }
func (s primitiveSerializer) NeedToWriteRef() bool { return false }

func (s primitiveSerializer) WriteData(ctx *WriteContext, value reflect.Value) error {
	return writePrimitive(ctx.buffer, s.typeId, value)
}

func (s primitiveSerializer) ReadData(ctx *ReadContext, type_ reflect.Type, value reflect.Value) error {
	return readPrimitive(ctx.buffer, s.typeId, value)
}

func writePrimitive(buf *ByteBuffer, id TypeId, v reflect.Value) error {
	switch id {
	case BOOL:
		buf.WriteBool(v.Bool())
	case INT8:
		buf.WriteInt8(int8(v.Int()))
	case INT16:
		buf.WriteInt16(int16(v.Int()))
	case INT32:
		buf.WriteVarInt32(int32(v.Int()))
	case INT64:
		buf.WriteVarInt64(v.Int())
	case UINT8:
		buf.WriteByte_(uint8(v.Uint()))
	case UINT16:
		buf.WriteInt16(int16(v.Uint()))
	case UINT32:
		buf.WriteVarUint32(uint32(v.Uint()))
	case UINT64:
		buf.WriteVarUint64(v.Uint())
	case FLOAT:
		buf.WriteFloat32(float32(v.Float()))
	case DOUBLE:
		buf.WriteFloat64(v.Float())
	default:
		return fmt.Errorf("fory: type id %d is not primitive", id)
	}
	return nil
}

// readPrimitive decodes into any value of the matching kind family, so
// named types like `type Celsius float32` are filled in place.
func readPrimitive(buf *ByteBuffer, id TypeId, v reflect.Value) error {
	switch id {
	case BOOL:
		b := buf.ReadBool()
		if v.Kind() != reflect.Bool {
			return primitiveMismatch(id, v)
		}
		v.SetBool(b)
		return nil
	case INT8, INT16, INT32, INT64:
		var n int64
		switch id {
		case INT8:
			n = int64(buf.ReadInt8())
		case INT16:
			n = int64(buf.ReadInt16())
		case INT32:
			n = int64(buf.ReadVarInt32())
		default:
			n = buf.ReadVarInt64()
		}
		switch v.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if v.OverflowInt(n) {
				return fmt.Errorf("fory: %d overflows %v", n, v.Type())
			}
			v.SetInt(n)
			return nil
		}
	case UINT8, UINT16, UINT32, UINT64:
		var n uint64
		switch id {
		case UINT8:
			n = uint64(buf.ReadByte_())
		case UINT16:
			n = uint64(uint16(buf.ReadInt16()))
		case UINT32:
			n = uint64(buf.ReadVarUint32())
		default:
			n = buf.ReadVarUint64()
		}
		switch v.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			if v.OverflowUint(n) {
				return fmt.Errorf("fory: %d overflows %v", n, v.Type())
			}
			v.SetUint(n)
			return nil
		}
	case FLOAT, DOUBLE:
		var f float64
		if id == FLOAT {
			f = float64(buf.ReadFloat32())
		} else {
			f = buf.ReadFloat64()
		}
		switch v.Kind() {
		case reflect.Float32, reflect.Float64:
			v.SetFloat(f)
			return nil
		}
	default:
		return fmt.Errorf("fory: type id %d is not primitive", id)
	}
	return primitiveMismatch(id, v)
}

func primitiveMismatch(id TypeId, v reflect.Value) error {
	return fmt.Errorf("%w: cannot decode type id %d into %v", ErrTypeMismatch, id, v.Type())
}

// builtinInfos are the identities shared by every registry.
var builtinInfos = func() map[TypeId]*TypeInfo {
	infos := make(map[TypeId]*TypeInfo)
	for _, id := range []TypeId{BOOL, INT8, INT16, INT32, INT64, UINT8, UINT16, UINT32, UINT64, FLOAT, DOUBLE} {
		infos[id] = &TypeInfo{Type: builtinTypes[id], TypeID: id, Serializer: primitiveSerializer{typeId: id}}
	}
	infos[STRING] = &TypeInfo{Type: stringType, TypeID: STRING, Serializer: stringSerializer{}}
	infos[BINARY] = &TypeInfo{Type: byteSliceType, TypeID: BINARY, Serializer: binarySerializer{}}
	// containers pick their concrete Go type while reading
	infos[LIST] = &TypeInfo{TypeID: LIST, Serializer: listSerializer{}}
	infos[MAP] = &TypeInfo{TypeID: MAP, Serializer: mapSerializer{}}
	return infos
}()

func builtinInfoForType(t reflect.Type) *TypeInfo {
	id := kindTypeId(t)
	if id == UNKNOWN {
		return nil
	}
	return builtinInfos[id]
}

func isScalarInfo(info *TypeInfo) bool {
	return isPrimitiveTypeId(info.TypeID) || info.TypeID == STRING
}
