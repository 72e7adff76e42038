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

// Serializer encodes the payload of one kind of value. Reference flags and
// type information are handled by the contexts; a serializer only sees the
// data that follows them.
type Serializer interface {
	// WriteData serializes value. Pointers have already been dereferenced.
	WriteData(ctx *WriteContext, value reflect.Value) error

	// ReadData deserializes into value, which is settable and of type_ or,
	// for containers, of whatever type the caller wants filled.
	// Serializers that allocate a referencable value (map, slice, struct)
	// must call ctx.RefReader().Reference with it before reading contents.
	ReadData(ctx *ReadContext, type_ reflect.Type, value reflect.Value) error

	// TypeId returns the Fory protocol type ID
	TypeId() TypeId

	// NeedToWriteRef returns true if this type needs reference tracking
	NeedToWriteRef() bool
}

// ExtensionSerializer is a caller-supplied codec for a registered type.
// Read builds the value in one step, so instances cannot be the target of a
// back-reference from their own contents.
type ExtensionSerializer interface {
	Write(ctx *WriteContext, value reflect.Value) error
	Read(ctx *ReadContext, type_ reflect.Type) (reflect.Value, error)
	// NeedToWriteRef declares whether pointers to the type take part in
	// reference tracking.
	NeedToWriteRef() bool
}

type extensionSerializer struct {
	type_ reflect.Type
	codec ExtensionSerializer
}

func (s *extensionSerializer) TypeId() TypeId       { return EXT }
func (s *extensionSerializer) NeedToWriteRef() bool { return s.codec.NeedToWriteRef() }

func (s *extensionSerializer) WriteData(ctx *WriteContext, value reflect.Value) error {
	return s.codec.Write(ctx, value)
}

func (s *extensionSerializer) ReadData(ctx *ReadContext, type_ reflect.Type, value reflect.Value) error {
	v, err := s.codec.Read(ctx, s.type_)
	if err != nil {
		return err
	}
	if !v.IsValid() || v.Type() != s.type_ {
		return fmt.Errorf("fory: extension codec for %v returned %v", s.type_, v)
	}
	value.Set(v)
	return nil
}
