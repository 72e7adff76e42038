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
	"log/slog"
	"reflect"
)

// ReadContext holds all state needed during deserialization.
type ReadContext struct {
	buffer       *ByteBuffer
	refReader    *RefReader
	registry     *TypeRegistry
	meta         *MetaContext
	generics     Generics
	trackRef     bool
	checkVersion bool
	depth        int
	maxDepth     int
	logger       *slog.Logger
	mismatches   []*SchemaVersionMismatchError
}

func newReadContext(registry *TypeRegistry, meta *MetaContext, cfg Config) *ReadContext {
	return &ReadContext{
		buffer:    NewByteBuffer(nil),
		refReader: NewRefReader(),
		registry:  registry,
		meta:      meta,
		trackRef:  cfg.RefTracking,
		maxDepth:  cfg.MaxDepth,
		logger:    cfg.logger(),
	}
}

// Reset clears per-call state. The meta context is reset by the owner.
func (c *ReadContext) Reset() {
	c.buffer.Reset()
	c.refReader.Reset()
	c.generics.reset()
	c.depth = 0
	c.mismatches = nil
}

// SetData sets new input data
func (c *ReadContext) SetData(data []byte) {
	c.buffer.SetData(data)
}

// Buffer returns the underlying buffer
func (c *ReadContext) Buffer() *ByteBuffer {
	return c.buffer
}

// RefReader returns the reference table of the current call.
func (c *ReadContext) RefReader() *RefReader {
	return c.refReader
}

// Inline primitive reads for extension codecs
func (c *ReadContext) ReadBool() bool       { return c.buffer.ReadBool() }
func (c *ReadContext) ReadInt8() int8       { return c.buffer.ReadInt8() }
func (c *ReadContext) ReadInt32() int32     { return c.buffer.ReadVarInt32() }
func (c *ReadContext) ReadInt64() int64     { return c.buffer.ReadVarInt64() }
func (c *ReadContext) ReadFloat64() float64 { return c.buffer.ReadFloat64() }

func (c *ReadContext) ReadString() (string, error) {
	return readString(c.buffer)
}

func (c *ReadContext) enter() error {
	c.depth++
	if c.maxDepth > 0 && c.depth > c.maxDepth {
		c.depth--
		return fmt.Errorf("%w: nesting deeper than %d", ErrMaxDepthExceeded, c.maxDepth)
	}
	return nil
}

func (c *ReadContext) leave() {
	c.depth--
}

// ReadValue reads a polymorphic value written by WriteValue into target,
// which must be settable.
func (c *ReadContext) ReadValue(target reflect.Value) error {
	return c.readValue(target, nil)
}

func (c *ReadContext) readValue(target reflect.Value, cache *classInfoCache) error {
	flag := c.buffer.ReadInt8()
	switch flag {
	case NullFlag:
		target.Set(reflect.Zero(target.Type()))
		return nil
	case RefFlag:
		return c.readBackRef(target)
	case RefValueFlag, NotNullValueFlag:
	default:
		return c.badFlag(flag)
	}
	info, err := c.readTypeInfoCached(cache)
	if err != nil {
		return err
	}
	return c.readWithInfo(flag, info, nil, target)
}

// readRefAndData reads a value whose codec is known statically: a ref flag
// then data, no type info.
func (c *ReadContext) readRefAndData(info *TypeInfo, gen *GenericType, target reflect.Value) error {
	flag := c.buffer.ReadInt8()
	switch flag {
	case NullFlag:
		target.Set(reflect.Zero(target.Type()))
		return nil
	case RefFlag:
		return c.readBackRef(target)
	case RefValueFlag, NotNullValueFlag:
	default:
		return c.badFlag(flag)
	}
	return c.readWithInfo(flag, info, gen, target)
}

func (c *ReadContext) badFlag(flag int8) error {
	if err := c.buffer.Err(); err != nil {
		return desyncf(c.buffer, "truncated input: %v", err)
	}
	return desyncf(c.buffer, "invalid reference flag %d", flag)
}

func (c *ReadContext) readBackRef(target reflect.Value) error {
	id := c.buffer.ReadVarUint32()
	obj, err := c.refReader.GetReadObject(c.buffer, int32(id))
	if err != nil {
		return err
	}
	return assignValue(target, obj)
}

func (c *ReadContext) readWithInfo(flag int8, info *TypeInfo, gen *GenericType, target reflect.Value) error {
	mark := c.refReader.mark()
	if flag == RefValueFlag {
		c.refReader.PreserveRefId(info.Type)
	} else {
		c.refReader.pushUntracked()
	}
	c.generics.push(gen)
	v, err := c.readData(info, flag, target)
	c.generics.pop()
	if err != nil {
		c.refReader.abort(mark)
		return err
	}
	c.refReader.complete(mark, v)
	return nil
}

// readData decodes a payload into target and returns the value that other
// locations may reference.
func (c *ReadContext) readData(info *TypeInfo, flag int8, target reflect.Value) (reflect.Value, error) {
	if err := c.enter(); err != nil {
		return reflect.Value{}, err
	}
	defer c.leave()
	t := info.Type
	tt := target.Type()
	// extension codecs build values in one step, so their instances only
	// become referencable once the read returns
	early := internalTypeId(info.TypeID) != EXT
	switch {
	case t == nil:
		// containers choose their Go type from the target
		for target.Kind() == reflect.Ptr {
			if target.IsNil() {
				target.Set(reflect.New(target.Type().Elem()))
			}
			target = target.Elem()
		}
		err := info.Serializer.ReadData(c, target.Type(), target)
		return target, err
	case tt == t || (isScalarInfo(info) && tt.Kind() == t.Kind()):
		if early && t.Kind() == reflect.Struct && flag == RefValueFlag && target.CanAddr() {
			c.refReader.Reference(target.Addr())
		}
		err := info.Serializer.ReadData(c, t, target)
		return target, err
	case tt.Kind() == reflect.Ptr && (tt.Elem() == t || isScalarInfo(info) && tt.Elem().Kind() == t.Kind()):
		p := reflect.New(tt.Elem())
		target.Set(p)
		if early {
			c.refReader.Reference(p)
		}
		if info.unknown {
			p.Interface().(*UnknownStruct).byValue = flag == NotNullValueFlag
		}
		err := info.Serializer.ReadData(c, t, p.Elem())
		return p, err
	case tt.Kind() == reflect.Interface:
		if t.Kind() == reflect.Struct && (flag == RefValueFlag || info.unknown) {
			p := reflect.New(t)
			if early {
				c.refReader.Reference(p)
			}
			if info.unknown {
				p.Interface().(*UnknownStruct).byValue = flag == NotNullValueFlag
			}
			if err := info.Serializer.ReadData(c, t, p.Elem()); err != nil {
				return p, err
			}
			if !p.Type().AssignableTo(tt) {
				return p, fmt.Errorf("%w: %v does not implement %v", ErrTypeMismatch, p.Type(), tt)
			}
			target.Set(p)
			return p, nil
		}
	}
	tmp := reflect.New(t).Elem()
	if err := info.Serializer.ReadData(c, t, tmp); err != nil {
		return tmp, err
	}
	if err := assignValue(target, tmp); err != nil {
		return tmp, err
	}
	return tmp, nil
}

// readTypeInfo reads the wire identity written by writeTypeInfo.
func (c *ReadContext) readTypeInfo() (*TypeInfo, error) {
	return c.readTypeInfoCached(nil)
}

func (c *ReadContext) readTypeInfoCached(cache *classInfoCache) (*TypeInfo, error) {
	id := c.buffer.ReadVarUint32()
	if cache != nil {
		if e := cache.read.Load(); e != nil && e.id == id {
			return e.info, nil
		}
	}
	info, err := c.resolveTypeInfo(id)
	if err != nil {
		return nil, err
	}
	// compatible and named ids depend on per-stream state that follows them
	if cache != nil && !isCompatibleTypeId(id) && id != NAMED_STRUCT {
		cache.read.Store(&classInfoEntry{id: id, info: info})
	}
	return info, nil
}

func (c *ReadContext) resolveTypeInfo(id TypeId) (*TypeInfo, error) {
	switch internalTypeId(id) {
	case COMPATIBLE_STRUCT, NAMED_COMPATIBLE_STRUCT:
		return c.readSharedTypeDef(id)
	case NAMED_STRUCT:
		namespace, err := c.readMetaString()
		if err != nil {
			return nil, err
		}
		name, err := c.readMetaString()
		if err != nil {
			return nil, err
		}
		info := c.registry.typeInfoByName(namespace, name)
		if info == nil || info.anonymous {
			return nil, fmt.Errorf("%w: no local type registered as %s.%s", ErrUnknownType, namespace, name)
		}
		return info, nil
	case STRUCT, EXT:
		info := c.registry.typeInfoById(id)
		if info == nil {
			return nil, fmt.Errorf("%w: no local type registered with id %d", ErrUnknownType, id>>8)
		}
		return info, nil
	}
	info, ok := builtinInfos[id]
	if !ok {
		if err := c.buffer.Err(); err != nil {
			return nil, desyncf(c.buffer, "truncated input: %v", err)
		}
		return nil, desyncf(c.buffer, "unknown type id %d", id)
	}
	return info, nil
}

// assignValue stores v into target, converting between compatible types:
// same-kind named types, numeric widening within a family, and pointer
// wrapping or unwrapping.
func assignValue(target, v reflect.Value) error {
	tt := target.Type()
	if elem, ok := optionalElem(tt); ok {
		return assignOptional(target, v, elem)
	}
	if !v.IsValid() {
		target.Set(reflect.Zero(tt))
		return nil
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			target.Set(reflect.Zero(tt))
			return nil
		}
		v = v.Elem()
	}
	vt := v.Type()
	switch {
	case vt.AssignableTo(tt):
		target.Set(v)
		return nil
	case vt.Kind() == reflect.Ptr && tt.Kind() != reflect.Ptr:
		if v.IsNil() {
			target.Set(reflect.Zero(tt))
			return nil
		}
		return assignValue(target, v.Elem())
	case tt.Kind() == reflect.Ptr && vt.Kind() != reflect.Ptr:
		p := reflect.New(tt.Elem())
		if err := assignValue(p.Elem(), v); err != nil {
			return err
		}
		target.Set(p)
		return nil
	case vt.Kind() == tt.Kind() && vt.ConvertibleTo(tt) && !v.CanInt() && !v.CanUint() && !v.CanFloat():
		target.Set(v.Convert(tt))
		return nil
	case v.CanInt() && (tt.Kind() >= reflect.Int && tt.Kind() <= reflect.Int64):
		if target.OverflowInt(v.Int()) {
			break
		}
		target.SetInt(v.Int())
		return nil
	case v.CanUint() && (tt.Kind() >= reflect.Uint && tt.Kind() <= reflect.Uint64):
		if target.OverflowUint(v.Uint()) {
			break
		}
		target.SetUint(v.Uint())
		return nil
	case v.CanFloat() && (tt.Kind() == reflect.Float32 || tt.Kind() == reflect.Float64):
		target.SetFloat(v.Float())
		return nil
	}
	return fmt.Errorf("%w: cannot assign %v to %v", ErrTypeMismatch, vt, tt)
}
