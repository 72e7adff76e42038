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
	"reflect"
	"unsafe"
)

// Reference flags
const (
	NullFlag         int8 = -3
	RefFlag          int8 = -2
	NotNullValueFlag int8 = -1
	RefValueFlag     int8 = 0
)

// refKey holds an unsafe.Pointer so that temporaries written in a pass stay
// alive and their addresses cannot be reused by later values.
type refKey struct {
	ptr  unsafe.Pointer
	typ  reflect.Type
	size int
}

// RefWriter assigns dense ids to object instances written in one pass.
type RefWriter struct {
	refs   map[refKey]int32
	nextId int32
}

func NewRefWriter() *RefWriter {
	return &RefWriter{refs: make(map[refKey]int32)}
}

func (w *RefWriter) Reset() {
	clear(w.refs)
	w.nextId = 0
}

// trackable reports whether v has an identity that can be shared by two
// locations in a graph.
func trackable(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr:
		return !v.IsNil() && v.Type().Elem().Size() > 0
	case reflect.Map:
		return !v.IsNil()
	case reflect.Slice:
		return v.Len() > 0 && v.Type().Elem().Size() > 0
	}
	return false
}

// Reference registers v by identity. existed is true when v was already
// written in this pass, in which case id is the id of the first occurrence.
func (w *RefWriter) Reference(v reflect.Value) (existed bool, id int32) {
	key := refKey{ptr: v.UnsafePointer(), typ: v.Type()}
	if v.Kind() == reflect.Slice {
		key.size = v.Len()
	}
	if id, ok := w.refs[key]; ok {
		return true, id
	}
	id = w.nextId
	w.refs[key] = id
	w.nextId++
	return false, id
}

// writeRefOrNull writes the leading flag for v. It returns true when the
// flag alone fully encodes the value (null or back-reference).
func (w *WriteContext) writeRefOrNull(v reflect.Value, track bool) bool {
	buf := w.buffer
	if isNil(v) {
		buf.WriteInt8(NullFlag)
		return true
	}
	if track && trackable(v) {
		if existed, id := w.refWriter.Reference(v); existed {
			buf.WriteInt8(RefFlag)
			buf.WriteVarUint32(uint32(id))
			return true
		}
		buf.WriteInt8(RefValueFlag)
		return false
	}
	buf.WriteInt8(NotNullValueFlag)
	return false
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Ptr, reflect.Map, reflect.Interface:
		return v.IsNil()
	case reflect.Slice:
		// []byte(nil) and []T(nil) round trip as nil
		return v.IsNil()
	}
	return false
}

// RefReader holds every object decoded in one pass, indexed by reference id.
// Slots are reserved before an object's body is read and filled as soon as
// the object is allocated, so fields may point back at their ancestors.
type RefReader struct {
	objects []reflect.Value
	types   []reflect.Type
	filled  []bool
	pending []int32
}

func NewRefReader() *RefReader {
	return &RefReader{
		objects: make([]reflect.Value, 0, 16),
	}
}

func (r *RefReader) Reset() {
	clear(r.objects)
	r.objects = r.objects[:0]
	r.types = r.types[:0]
	r.filled = r.filled[:0]
	r.pending = r.pending[:0]
}

// PreserveRefId reserves the next reference id for an object of type t
// whose body is about to be read.
func (r *RefReader) PreserveRefId(t reflect.Type) int32 {
	id := int32(len(r.objects))
	r.objects = append(r.objects, reflect.Value{})
	r.types = append(r.types, t)
	r.filled = append(r.filled, false)
	r.pending = append(r.pending, id)
	return id
}

// pushUntracked opens a frame for a value that has no reference id.
func (r *RefReader) pushUntracked() {
	r.pending = append(r.pending, -1)
}

// Reference fills the innermost reserved slot with v. Codecs call it right
// after allocating a value and before decoding its contents.
func (r *RefReader) Reference(v reflect.Value) {
	n := len(r.pending)
	if n == 0 {
		return
	}
	id := r.pending[n-1]
	r.pending = r.pending[:n-1]
	if id >= 0 {
		r.objects[id] = v
		r.filled[id] = true
	}
}

// mark and complete bracket one value read: complete fills the frame's slot
// with v unless the codec already did so.
func (r *RefReader) mark() int {
	return len(r.pending)
}

func (r *RefReader) complete(mark int, v reflect.Value) {
	if len(r.pending) > mark {
		r.Reference(v)
	}
	// unwind frames abandoned by a failed nested read
	if len(r.pending) > mark {
		r.pending = r.pending[:mark]
	}
}

// abort drops the frames opened since mark without filling them.
func (r *RefReader) abort(mark int) {
	if len(r.pending) > mark {
		r.pending = r.pending[:mark]
	}
}

// GetReadObject resolves a back-reference.
func (r *RefReader) GetReadObject(buf *ByteBuffer, id int32) (reflect.Value, error) {
	if id < 0 || int(id) >= len(r.objects) {
		return reflect.Value{}, desyncf(buf, "reference id %d was never registered (%d known)", id, len(r.objects))
	}
	if !r.filled[id] {
		return reflect.Value{}, &UnconstructableTypeError{Type: r.types[id], RefId: id}
	}
	return r.objects[id], nil
}

// ReadObjects returns the objects decoded so far in id order. Slots that
// were reserved but never filled are nil.
func (r *RefReader) ReadObjects() []any {
	out := make([]any, len(r.objects))
	for i, v := range r.objects {
		if r.filled[i] && v.IsValid() && v.CanInterface() {
			out[i] = v.Interface()
		}
	}
	return out
}
