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
	"log/slog"
	"reflect"
)

// Protocol constants
const (
	MAGIC_NUMBER int16 = 0x62D4
)

// Bitmap flags for protocol header
const (
	LittleEndianFlag = 2
	// CheckVersionFlag: struct payloads start with their version hash
	CheckVersionFlag = 8
	// CompatibleFlag: structs were written with their TypeDefs
	CompatibleFlag = 16
)

// Fory is the main serialization instance.
// Note: Fory is NOT thread-safe. Use the threadsafe package for concurrent use.
type Fory struct {
	config   Config
	registry *TypeRegistry
	logger   *slog.Logger

	writeMeta *MetaContext
	readMeta  *MetaContext

	// Reusable contexts - avoid allocation on each Serialize/Deserialize call
	writeCtx *WriteContext
	readCtx  *ReadContext

	mismatches []*SchemaVersionMismatchError
}

// New creates a new Fory instance with the given options
func New(opts ...Option) *Fory {
	f := &Fory{config: DefaultConfig()}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.config.logger()
	if f.registry == nil {
		cache, err := NewTypeDefCache(max(f.config.TypeDefCacheSize, 0))
		if err != nil {
			f.logger.Warn("falling back to default typedef cache", "error", err)
			cache, _ = NewTypeDefCache(defaultTypeDefCacheSize)
		}
		f.registry = NewTypeRegistry(RegistryTypeDefCache(cache), RegistryLogger(f.logger))
	}
	f.writeMeta = NewMetaContext()
	f.readMeta = NewMetaContext()
	f.writeCtx = newWriteContext(f.registry, f.writeMeta, f.config)
	f.readCtx = newReadContext(f.registry, f.readMeta, f.config)
	return f
}

// Config returns the configuration the instance was built with.
func (f *Fory) Config() Config {
	return f.config
}

// Registry returns the type registry, which may be shared with other instances.
func (f *Fory) Registry() *TypeRegistry {
	return f.registry
}

// RegisterStruct registers a struct type under a numeric id.
// type_ can be either a reflect.Type or an instance of the type
func (f *Fory) RegisterStruct(type_ any, id uint32) error {
	return f.registry.RegisterStruct(type_, id)
}

// RegisterNamedStruct registers a struct type under a namespace and name.
func (f *Fory) RegisterNamedStruct(type_ any, namespace, typeName string) error {
	return f.registry.RegisterNamedStruct(type_, namespace, typeName)
}

// RegisterExtension registers a custom codec for a type.
func (f *Fory) RegisterExtension(type_ any, id uint32, codec ExtensionSerializer) error {
	return f.registry.RegisterExtension(type_, id, codec)
}

// Reset clears internal state for reuse. A shared meta context survives.
func (f *Fory) Reset() {
	f.writeCtx.Reset()
	f.readCtx.Reset()
	if !f.config.SharedMetaContext {
		f.writeMeta.Reset()
		f.readMeta.Reset()
	}
}

// ResetMetaContext forgets every shared TypeDef, on both the write and
// the read side, and clears poisoning. Peers must reset together.
func (f *Fory) ResetMetaContext() {
	f.writeMeta.Reset()
	f.readMeta.Reset()
}

// SchemaMismatches returns the struct schema differences tolerated by the
// last Deserialize call in compatible mode.
func (f *Fory) SchemaMismatches() []*SchemaVersionMismatchError {
	return append([]*SchemaVersionMismatchError(nil), f.mismatches...)
}

// Serialize encodes v, which may be any supported value including nil.
func (f *Fory) Serialize(v any) ([]byte, error) {
	return f.serialize(reflect.ValueOf(v))
}

// Deserialize decodes data into v, which must be a non-nil pointer.
func (f *Fory) Deserialize(data []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("fory: Deserialize needs a non-nil pointer, got %T", v)
	}
	return f.deserialize(data, rv.Elem())
}

// Marshal is an alias for Serialize
func (f *Fory) Marshal(v any) ([]byte, error) {
	return f.Serialize(v)
}

// Unmarshal is an alias for Deserialize
func (f *Fory) Unmarshal(data []byte, v any) error {
	return f.Deserialize(data, v)
}

// SerializeAny serializes polymorphic values where concrete type is unknown.
func (f *Fory) SerializeAny(value any) ([]byte, error) {
	return f.serialize(reflect.ValueOf(value))
}

// DeserializeAny decodes a value into the Go types it was written from, or
// into placeholders for structs no local type claims.
func (f *Fory) DeserializeAny(data []byte) (any, error) {
	var result any
	if err := f.deserialize(data, reflect.ValueOf(&result).Elem()); err != nil {
		return nil, err
	}
	return result, nil
}

// Serialize - type T inferred.
// Note: Fory instance is NOT thread-safe.
func Serialize[T any](f *Fory, value T) ([]byte, error) {
	return f.serialize(reflect.ValueOf(&value).Elem())
}

// Deserialize decodes data as a T.
func Deserialize[T any](f *Fory, data []byte) (T, error) {
	var out T
	err := f.deserialize(data, reflect.ValueOf(&out).Elem())
	return out, err
}

func (f *Fory) serialize(v reflect.Value) ([]byte, error) {
	shared := f.config.SharedMetaContext
	if shared && f.writeMeta.poisoned {
		return nil, ErrMetaContextPoisoned
	}
	ctx := f.writeCtx
	ctx.Reset()
	if !shared {
		f.writeMeta.Reset()
	}
	writeHeader(ctx, f.config)
	if err := ctx.WriteValue(v); err != nil {
		if shared {
			f.writeMeta.poisoned = true
		}
		return nil, err
	}
	return ctx.buffer.Bytes(), nil
}

func (f *Fory) deserialize(data []byte, target reflect.Value) error {
	shared := f.config.SharedMetaContext
	if shared && f.readMeta.poisoned {
		return ErrMetaContextPoisoned
	}
	ctx := f.readCtx
	ctx.Reset()
	if !shared {
		f.readMeta.Reset()
	}
	f.mismatches = nil
	ctx.SetData(data)
	err := readHeader(ctx)
	if err == nil {
		err = ctx.ReadValue(target)
	}
	buf := ctx.buffer
	switch {
	case buf.Err() != nil:
		err = desyncf(buf, "input ends early: %v", buf.Err())
	case err == nil && buf.Remaining() > 0:
		err = desyncf(buf, "%d trailing bytes after value", buf.Remaining())
	}
	f.mismatches = append(f.mismatches, ctx.mismatches...)
	if err != nil {
		if shared {
			f.readMeta.poisoned = true
		}
		if errors.Is(err, ErrMagicNumber) {
			return err
		}
		return wrapReadError(err, ctx.refReader.ReadObjects())
	}
	return nil
}

// writeHeader writes the Fory protocol header
func writeHeader(ctx *WriteContext, config Config) {
	ctx.buffer.WriteInt16(MAGIC_NUMBER)
	var bitmap byte = LittleEndianFlag
	if config.CheckVersion {
		bitmap |= CheckVersionFlag
	}
	if config.Compatible {
		bitmap |= CompatibleFlag
	}
	ctx.buffer.WriteByte_(bitmap)
	ctx.checkVersion = config.CheckVersion
}

// readHeader reads and validates the Fory protocol header
func readHeader(ctx *ReadContext) error {
	if ctx.buffer.ReadInt16() != MAGIC_NUMBER {
		return ErrMagicNumber
	}
	bitmap := ctx.buffer.ReadByte_()
	if bitmap&LittleEndianFlag == 0 {
		return desyncf(ctx.buffer, "big-endian streams are not supported")
	}
	ctx.checkVersion = bitmap&CheckVersionFlag != 0
	return nil
}
