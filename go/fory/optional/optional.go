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

// Package optional provides a value-typed alternative to pointer fields.
// A struct field of type Optional[T] is encoded as a nullable T: an empty
// Optional is written as null and a null decodes to an empty Optional.
package optional

// Optional holds a value of T or nothing, without pointer indirection.
// T is limited to scalars and strings when used as a struct field.
type Optional[T any] struct {
	Value T
	Has   bool
}

// Some returns an Optional containing v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Has: true}
}

// None returns an empty Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// FromPtr converts a pointer to an Optional.
func FromPtr[T any](v *T) Optional[T] {
	if v == nil {
		return None[T]()
	}
	return Some(*v)
}

// Ptr returns a pointer to a copy of the value, or nil when empty.
func (o Optional[T]) Ptr() *T {
	if !o.Has {
		return nil
	}
	v := o.Value
	return &v
}

func (o Optional[T]) IsSome() bool { return o.Has }
func (o Optional[T]) IsNone() bool { return !o.Has }

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Has
}

// UnwrapOr returns the contained value or fallback.
func (o Optional[T]) UnwrapOr(fallback T) T {
	if o.Has {
		return o.Value
	}
	return fallback
}

// Set stores v and marks the Optional present.
func (o *Optional[T]) Set(v T) {
	o.Value = v
	o.Has = true
}
