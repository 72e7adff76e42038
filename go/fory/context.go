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

// WriteContext holds all state needed during serialization.
type WriteContext struct {
	buffer     *ByteBuffer
	refWriter  *RefWriter
	registry   *TypeRegistry
	meta       *MetaContext
	generics   Generics
	trackRef   bool
	compatible bool
	// strict rejects unregistered struct types
	strict       bool
	checkVersion bool
	depth        int
	maxDepth     int
	logger       *slog.Logger
}

func newWriteContext(registry *TypeRegistry, meta *MetaContext, cfg Config) *WriteContext {
	return &WriteContext{
		buffer:       NewByteBuffer(nil),
		refWriter:    NewRefWriter(),
		registry:     registry,
		meta:         meta,
		trackRef:     cfg.RefTracking,
		compatible:   cfg.Compatible,
		strict:       cfg.RequireRegistration,
		checkVersion: cfg.CheckVersion,
		maxDepth:     cfg.MaxDepth,
		logger:       cfg.logger(),
	}
}

// Reset clears per-call state. The meta context is reset by the owner.
func (c *WriteContext) Reset() {
	c.buffer.Reset()
	c.refWriter.Reset()
	c.generics.reset()
	c.depth = 0
}

// Buffer returns the underlying buffer
func (c *WriteContext) Buffer() *ByteBuffer {
	return c.buffer
}

// TrackRef returns whether reference tracking is enabled
func (c *WriteContext) TrackRef() bool {
	return c.trackRef
}

// Compatible returns whether schema evolution compatibility mode is enabled
func (c *WriteContext) Compatible() bool {
	return c.compatible
}

// Inline primitive writes for extension codecs
func (c *WriteContext) WriteBool(v bool)       { c.buffer.WriteBool(v) }
func (c *WriteContext) WriteInt8(v int8)       { c.buffer.WriteInt8(v) }
func (c *WriteContext) WriteInt32(v int32)     { c.buffer.WriteVarInt32(v) }
func (c *WriteContext) WriteInt64(v int64)     { c.buffer.WriteVarInt64(v) }
func (c *WriteContext) WriteFloat64(v float64) { c.buffer.WriteFloat64(v) }
func (c *WriteContext) WriteString(v string)   { writeString(c.buffer, v) }

func (c *WriteContext) enter() error {
	c.depth++
	if c.maxDepth > 0 && c.depth > c.maxDepth {
		c.depth--
		return fmt.Errorf("%w: nesting deeper than %d", ErrMaxDepthExceeded, c.maxDepth)
	}
	return nil
}

func (c *WriteContext) leave() {
	c.depth--
}

func (c *WriteContext) typeInfoFor(t reflect.Type) (*TypeInfo, error) {
	return c.registry.typeInfoFor(t, c.strict)
}

// typeInfoForValue resolves the write identity of a non-nil value.
func (c *WriteContext) typeInfoForValue(v reflect.Value) (*TypeInfo, error) {
	t := v.Type()
	for t.Kind() == reflect.Ptr {
		v, t = v.Elem(), t.Elem()
	}
	if t == unknownStructTyp {
		u := v.Addr().Interface().(*UnknownStruct)
		if u.def == nil {
			return nil, fmt.Errorf("%w: UnknownStruct without a definition", ErrUnsupportedType)
		}
		return c.registry.unknownInfo(u.def), nil
	}
	return c.typeInfoFor(t)
}

// WriteValue writes a polymorphic value: ref flag, type info and data.
// Nothing is written when the value's type cannot be resolved, and a
// failure part way through rolls the buffer back to where it started.
func (c *WriteContext) WriteValue(v reflect.Value) error {
	for v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	if isNil(v) {
		c.buffer.WriteInt8(NullFlag)
		return nil
	}
	if v.Kind() == reflect.Struct && !v.CanAddr() {
		p := reflect.New(v.Type())
		p.Elem().Set(v)
		v = p.Elem()
	}
	info, err := c.typeInfoForValue(v)
	if err != nil {
		return err
	}
	return c.writeValueWithInfo(v, info)
}

// writeValueCached is WriteValue for a dynamic struct field, remembering
// the last resolved type.
func (c *WriteContext) writeValueCached(v reflect.Value, cache *classInfoCache) error {
	for v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	if isNil(v) {
		c.buffer.WriteInt8(NullFlag)
		return nil
	}
	t := v.Type()
	if e := cache.write.Load(); e != nil && e.type_ == t {
		return c.writeValueWithInfo(v, e.info)
	}
	if v.Kind() == reflect.Struct && !v.CanAddr() {
		p := reflect.New(t)
		p.Elem().Set(v)
		v = p.Elem()
	}
	info, err := c.typeInfoForValue(v)
	if err != nil {
		return err
	}
	// anonymous identities are replaced when the type is registered later
	if !info.unknown && !info.anonymous {
		cache.write.Store(&classInfoEntry{type_: t, info: info})
	}
	return c.writeValueWithInfo(v, info)
}

func (c *WriteContext) writeValueWithInfo(v reflect.Value, info *TypeInfo) error {
	start := c.buffer.WriterIndex()
	track := c.trackRef && info.Serializer.NeedToWriteRef()
	if info.unknown {
		if u, ok := placeholderOf(v); ok && u.byValue {
			track = false
		}
	}
	if c.writeRefOrNull(v, track) {
		return nil
	}
	if err := c.writeTypeInfo(info); err != nil {
		c.buffer.SetWriterIndex(start)
		return err
	}
	if err := c.writeData(info, nil, v); err != nil {
		c.buffer.SetWriterIndex(start)
		return err
	}
	return nil
}

func placeholderOf(v reflect.Value) (*UnknownStruct, bool) {
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Type() != unknownStructTyp || !v.CanAddr() {
		return nil, false
	}
	return v.Addr().Interface().(*UnknownStruct), true
}

// writeData writes the payload of v with the codec of info. gen is the
// declared shape when v sits in a declared container position.
func (c *WriteContext) writeData(info *TypeInfo, gen *GenericType, v reflect.Value) error {
	if err := c.enter(); err != nil {
		return err
	}
	defer c.leave()
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	c.generics.push(gen)
	err := info.Serializer.WriteData(c, v)
	c.generics.pop()
	return err
}

// writeTypeInfo writes the wire identity of info. Structs written with their
// definition get a shared-definition marker after the id.
func (c *WriteContext) writeTypeInfo(info *TypeInfo) error {
	buf := c.buffer
	switch {
	case info.unknown:
		buf.WriteVarUint32(info.TypeID)
		c.writeSharedTypeDef(info.def)
	case isStructTypeId(info.TypeID):
		if c.compatible || info.anonymous {
			def, err := c.registry.typeDefFor(info, c.trackRef)
			if err != nil {
				return err
			}
			buf.WriteVarUint32(def.typeId)
			c.writeSharedTypeDef(def)
			return nil
		}
		if info.byName {
			buf.WriteVarUint32(NAMED_STRUCT)
			c.writeMetaString(info.Namespace)
			c.writeMetaString(info.TypeName)
			return nil
		}
		buf.WriteVarUint32(info.TypeID)
	default:
		buf.WriteVarUint32(info.TypeID)
	}
	return nil
}
