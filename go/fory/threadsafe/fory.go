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

// Package threadsafe provides a thread-safe wrapper around Fory using sync.Pool.
package threadsafe

import (
	"sync"

	"github.com/chaokunyang/fory/go/fory"
)

// Fory is a thread-safe wrapper around fory.Fory using sync.Pool.
// Pooled instances share one type registry, so registrations and cached
// plans are visible to all of them. Shared meta contexts are per instance
// and should not be enabled here.
type Fory struct {
	pool     sync.Pool
	registry *fory.TypeRegistry
}

// New creates a new thread-safe Fory instance
func New(opts ...fory.Option) *Fory {
	first := fory.New(opts...)
	f := &Fory{registry: first.Registry()}
	shared := append(append([]fory.Option(nil), opts...), fory.WithRegistry(f.registry))
	f.pool = sync.Pool{
		New: func() any {
			return fory.New(shared...)
		},
	}
	f.pool.Put(first)
	return f
}

func (f *Fory) acquire() *fory.Fory {
	return f.pool.Get().(*fory.Fory)
}

func (f *Fory) release(inner *fory.Fory) {
	inner.Reset()
	f.pool.Put(inner)
}

// Registry returns the registry shared by every pooled instance.
func (f *Fory) Registry() *fory.TypeRegistry {
	return f.registry
}

// RegisterStruct registers a struct type under a numeric id.
func (f *Fory) RegisterStruct(type_ any, id uint32) error {
	return f.registry.RegisterStruct(type_, id)
}

// RegisterNamedStruct registers a struct type under a namespace and name.
func (f *Fory) RegisterNamedStruct(type_ any, namespace, typeName string) error {
	return f.registry.RegisterNamedStruct(type_, namespace, typeName)
}

// RegisterExtension registers a custom codec for a type.
func (f *Fory) RegisterExtension(type_ any, id uint32, codec fory.ExtensionSerializer) error {
	return f.registry.RegisterExtension(type_, id, codec)
}

// Serialize serializes a value using a pooled Fory instance
func (f *Fory) Serialize(v any) ([]byte, error) {
	inner := f.acquire()
	defer f.release(inner)
	return inner.Serialize(v)
}

// Deserialize deserializes data into the provided value using a pooled Fory instance
func (f *Fory) Deserialize(data []byte, v any) error {
	inner := f.acquire()
	defer f.release(inner)
	return inner.Deserialize(data, v)
}

// DeserializeAny deserializes polymorphic values
func (f *Fory) DeserializeAny(data []byte) (any, error) {
	inner := f.acquire()
	defer f.release(inner)
	return inner.DeserializeAny(data)
}

// Serialize serializes a value with type T inferred, thread-safe
func Serialize[T any](f *Fory, value T) ([]byte, error) {
	inner := f.acquire()
	defer f.release(inner)
	return fory.Serialize(inner, value)
}

// Deserialize deserializes data to type T, thread-safe
func Deserialize[T any](f *Fory, data []byte) (T, error) {
	inner := f.acquire()
	defer f.release(inner)
	return fory.Deserialize[T](inner, data)
}

// Global thread-safe Fory instance for convenience
var globalFory = New()

// Marshal serializes a value using the global thread-safe instance
func Marshal[T any](value T) ([]byte, error) {
	return Serialize(globalFory, value)
}

// Unmarshal deserializes data using the global thread-safe instance
func Unmarshal[T any](data []byte) (T, error) {
	return Deserialize[T](globalFory, data)
}

// UnmarshalTo deserializes data into the provided pointer using the global thread-safe instance
func UnmarshalTo(data []byte, v any) error {
	return globalFory.Deserialize(data, v)
}
