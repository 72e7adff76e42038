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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRefWriterIdentity(t *testing.T) {
	w := NewRefWriter()
	a, b := &Point{X: 1}, &Point{X: 1}

	existed, id := w.Reference(reflect.ValueOf(a))
	require.False(t, existed)
	require.Equal(t, int32(0), id)
	existed, id = w.Reference(reflect.ValueOf(b))
	require.False(t, existed)
	require.Equal(t, int32(1), id)
	existed, id = w.Reference(reflect.ValueOf(a))
	require.True(t, existed)
	require.Equal(t, int32(0), id)

	// a sub-slice sharing the backing array is a distinct object
	s := []int32{1, 2, 3}
	_, first := w.Reference(reflect.ValueOf(s))
	existed, second := w.Reference(reflect.ValueOf(s[:2]))
	require.False(t, existed)
	require.NotEqual(t, first, second)

	w.Reset()
	existed, id = w.Reference(reflect.ValueOf(a))
	require.False(t, existed)
	require.Equal(t, int32(0), id)
}

func TestTrackable(t *testing.T) {
	require.True(t, trackable(reflect.ValueOf(&Point{})))
	require.True(t, trackable(reflect.ValueOf(map[string]int{})))
	require.True(t, trackable(reflect.ValueOf([]string{"a"})))
	require.False(t, trackable(reflect.ValueOf([]string{})))
	require.False(t, trackable(reflect.ValueOf(&struct{}{})))
	require.False(t, trackable(reflect.ValueOf(Point{})))
	require.False(t, trackable(reflect.ValueOf("s")))
}

func TestRefReaderResolvesFilledSlots(t *testing.T) {
	r := NewRefReader()
	buf := NewByteBuffer(nil)
	p := reflect.ValueOf(&Point{X: 7})

	mark := r.mark()
	id := r.PreserveRefId(p.Type())
	require.Equal(t, int32(0), id)
	r.Reference(p)
	r.complete(mark, p)

	got, err := r.GetReadObject(buf, id)
	require.NoError(t, err)
	require.Same(t, p.Interface(), got.Interface())
	require.Len(t, r.ReadObjects(), 1)
}

func TestRefReaderUnfilledSlot(t *testing.T) {
	r := NewRefReader()
	buf := NewByteBuffer(nil)
	typ := reflect.TypeOf(&Point{})

	id := r.PreserveRefId(typ)
	_, err := r.GetReadObject(buf, id)
	var unconstructable *UnconstructableTypeError
	require.ErrorAs(t, err, &unconstructable)
	require.Equal(t, typ, unconstructable.Type)
	require.Equal(t, []any{nil}, r.ReadObjects())
}

func TestRefReaderUnknownId(t *testing.T) {
	r := NewRefReader()
	_, err := r.GetReadObject(NewByteBuffer(nil), 4)
	require.ErrorIs(t, err, ErrProtocolDesync)
}

func TestRefReaderAbortDropsFrames(t *testing.T) {
	r := NewRefReader()
	mark := r.mark()
	r.PreserveRefId(nil)
	r.pushUntracked()
	r.abort(mark)
	require.Equal(t, mark, r.mark())

	// a later Reference must not land in the abandoned slot
	r.Reference(reflect.ValueOf(1))
	_, err := r.GetReadObject(NewByteBuffer(nil), 0)
	require.ErrorIs(t, err, ErrUnconstructableType)

	r.Reset()
	require.Empty(t, r.ReadObjects())
}
