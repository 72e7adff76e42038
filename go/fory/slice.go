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

// Element header flags shared by lists and maps.
const (
	// elemDeclared: element codec comes from the declared GenericType
	elemDeclared byte = 1 << iota
	// elemSameType: one type info follows the header and applies to all elements
	elemSameType
	// elemFlagged: every element starts with a ref/null flag
	elemFlagged
	// elemPointer: elements were Go pointers
	elemPointer
)

// elemCodec describes how the elements of one container are laid out.
// With neither elemDeclared nor elemSameType each element carries its own
// flag and type info.
type elemCodec struct {
	flags byte
	info  *TypeInfo
	gen   *GenericType
}

func (c *WriteContext) prepareElems(declared *GenericType, goType reflect.Type) (elemCodec, error) {
	var e elemCodec
	switch {
	case declared != nil:
		// a dynamic declaration keeps per-element type info even when the
		// Go type is concrete, so the layout depends only on the declaration
		if declared.info != nil {
			e.flags |= elemDeclared
			e.info = declared.info
			e.gen = declared
		}
	case goType.Kind() != reflect.Interface:
		base := goType
		for base.Kind() == reflect.Ptr {
			base = base.Elem()
		}
		if base == unknownStructTyp {
			break
		}
		info, err := c.typeInfoFor(base)
		if err != nil {
			return e, err
		}
		e.flags |= elemSameType
		e.info = info
	}
	if e.info != nil {
		if goType.Kind() == reflect.Ptr {
			e.flags |= elemPointer
		}
		if !isPrimitiveTypeId(e.info.TypeID) || goType.Kind() == reflect.Ptr {
			e.flags |= elemFlagged
		}
	}
	return e, nil
}

func (c *WriteContext) writeElemHeader(e elemCodec) error {
	c.buffer.WriteByte_(e.flags)
	if e.flags&elemSameType != 0 {
		return c.writeTypeInfo(e.info)
	}
	return nil
}

func (c *WriteContext) writeElem(e elemCodec, v reflect.Value) error {
	if e.info == nil {
		return c.WriteValue(v)
	}
	if e.flags&elemFlagged == 0 {
		return writePrimitive(c.buffer, e.info.TypeID, v)
	}
	if c.writeRefOrNull(v, c.trackRef) {
		return nil
	}
	return c.writeData(e.info, e.gen, v)
}

// elemCodecFor rebuilds the element layout from a header byte.
func (c *ReadContext) elemCodecFor(flags byte, declared *GenericType) (elemCodec, error) {
	e := elemCodec{flags: flags}
	switch {
	case flags&elemDeclared != 0:
		if declared == nil || declared.info == nil {
			return e, desyncf(c.buffer, "container declares its element type but no declaration is in scope")
		}
		e.info = declared.info
		e.gen = declared
	case flags&elemSameType != 0:
		info, err := c.readTypeInfo()
		if err != nil {
			return e, err
		}
		e.info = info
	}
	return e, nil
}

func (c *ReadContext) readElem(e elemCodec, target reflect.Value) error {
	if e.info == nil {
		return c.ReadValue(target)
	}
	if e.flags&elemFlagged == 0 {
		if target.Kind() == reflect.Interface {
			tmp := reflect.New(e.info.Type).Elem()
			if err := readPrimitive(c.buffer, e.info.TypeID, tmp); err != nil {
				return err
			}
			target.Set(tmp)
			return nil
		}
		return readPrimitive(c.buffer, e.info.TypeID, target)
	}
	return c.readRefAndData(e.info, e.gen, target)
}

// elemGoType picks the Go type for elements decoded without a local
// declaration.
func (c *ReadContext) elemGoType(e elemCodec) reflect.Type {
	switch {
	case e.info == nil || e.info.unknown:
		return interfaceType
	case e.gen != nil:
		return c.registry.goTypeFor(e.gen.fieldType, e.gen.nullable)
	case e.info.Type == nil:
		return interfaceType
	case e.flags&elemPointer != 0:
		return reflect.PtrTo(e.info.Type)
	}
	return e.info.Type
}

// listSerializer handles slices and arrays other than []byte.
type listSerializer struct{}

func (s listSerializer) TypeId() TypeId       { return LIST }
func (s listSerializer) NeedToWriteRef() bool { return true }

func (s listSerializer) WriteData(ctx *WriteContext, value reflect.Value) error {
	var elemGen *GenericType
	if gen := ctx.generics.top(); gen != nil {
		elemGen = gen.elem
	}
	n := value.Len()
	ctx.buffer.WriteVarUint32(uint32(n))
	e, err := ctx.prepareElems(elemGen, value.Type().Elem())
	if err != nil {
		return err
	}
	if err := ctx.writeElemHeader(e); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := ctx.writeElem(e, value.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (s listSerializer) ReadData(ctx *ReadContext, type_ reflect.Type, value reflect.Value) error {
	buf := ctx.buffer
	n := int(buf.ReadVarUint32())
	if n > buf.Remaining() {
		return desyncf(buf, "list of %d elements exceeds remaining %d bytes", n, buf.Remaining())
	}
	var elemGen *GenericType
	if gen := ctx.generics.top(); gen != nil {
		elemGen = gen.elem
	}
	e, err := ctx.elemCodecFor(buf.ReadByte_(), elemGen)
	if err != nil {
		return err
	}
	var list reflect.Value
	switch value.Kind() {
	case reflect.Slice:
		list = reflect.MakeSlice(value.Type(), n, n)
	case reflect.Array:
		return readArray(ctx, e, n, value)
	case reflect.Interface:
		list = reflect.MakeSlice(reflect.SliceOf(ctx.elemGoType(e)), n, n)
	default:
		return fmt.Errorf("%w: cannot decode list into %v", ErrTypeMismatch, value.Type())
	}
	value.Set(list)
	ctx.refReader.Reference(list)
	for i := 0; i < n; i++ {
		if err := ctx.readElem(e, list.Index(i)); err != nil {
			return err
		}
	}
	return nil
}
