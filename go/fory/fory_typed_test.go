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
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSerializeGenericPrimitives tests Serialize[T]/Deserialize[T] with primitives.
func TestSerializeGenericPrimitives(t *testing.T) {
	f := New(WithRefTracking(true))

	t.Run("Bool", func(t *testing.T) {
		data, err := Serialize(f, true)
		require.NoError(t, err)
		result, err := Deserialize[bool](f, data)
		require.NoError(t, err)
		require.True(t, result)

		data, err = Serialize(f, false)
		require.NoError(t, err)
		result, err = Deserialize[bool](f, data)
		require.NoError(t, err)
		require.False(t, result)
	})

	t.Run("Int8", func(t *testing.T) {
		data, err := Serialize(f, int8(-42))
		require.NoError(t, err)
		result, err := Deserialize[int8](f, data)
		require.NoError(t, err)
		require.Equal(t, int8(-42), result)
	})

	t.Run("Int32", func(t *testing.T) {
		data, err := Serialize(f, int32(-12345))
		require.NoError(t, err)
		result, err := Deserialize[int32](f, data)
		require.NoError(t, err)
		require.Equal(t, int32(-12345), result)
	})

	t.Run("IntWidensToInt64", func(t *testing.T) {
		data, err := Serialize(f, 9876543210)
		require.NoError(t, err)
		result, err := Deserialize[int64](f, data)
		require.NoError(t, err)
		require.Equal(t, int64(9876543210), result)
	})

	t.Run("Uint16", func(t *testing.T) {
		data, err := Serialize(f, uint16(65000))
		require.NoError(t, err)
		result, err := Deserialize[uint16](f, data)
		require.NoError(t, err)
		require.Equal(t, uint16(65000), result)
	})

	t.Run("Float32", func(t *testing.T) {
		data, err := Serialize(f, float32(3.14))
		require.NoError(t, err)
		result, err := Deserialize[float32](f, data)
		require.NoError(t, err)
		require.InDelta(t, float32(3.14), result, 0.001)
	})

	t.Run("String", func(t *testing.T) {
		for _, s := range []string{"hello fory", "", "héllo wörld ✓"} {
			data, err := Serialize(f, s)
			require.NoError(t, err)
			result, err := Deserialize[string](f, data)
			require.NoError(t, err)
			require.Equal(t, s, result)
		}
	})

	t.Run("Bytes", func(t *testing.T) {
		data, err := Serialize(f, []byte{1, 2, 3})
		require.NoError(t, err)
		result, err := Deserialize[[]byte](f, data)
		require.NoError(t, err)
		require.Equal(t, []byte{1, 2, 3}, result)
	})
}

// TestSerializeGenericComplex tests Serialize[T]/Deserialize[T] with structs and containers.
func TestSerializeGenericComplex(t *testing.T) {
	f := New(WithRefTracking(true))

	t.Run("Struct", func(t *testing.T) {
		type TestStruct struct {
			Name  string
			Value int32
		}
		require.NoError(t, f.RegisterNamedStruct(TestStruct{}, "example", "TestStruct"))

		original := TestStruct{Name: "test", Value: 100}
		data, err := Serialize(f, original)
		require.NoError(t, err)
		result, err := Deserialize[TestStruct](f, data)
		require.NoError(t, err)
		require.Equal(t, original, result)
	})

	t.Run("Slice", func(t *testing.T) {
		original := []int32{1, 2, 3, 4, 5}
		data, err := Serialize(f, original)
		require.NoError(t, err)
		result, err := Deserialize[[]int32](f, data)
		require.NoError(t, err)
		require.Equal(t, original, result)
	})

	t.Run("Map", func(t *testing.T) {
		original := map[string]int32{"a": 1, "b": 2, "c": 3}
		data, err := Serialize(f, original)
		require.NoError(t, err)
		result, err := Deserialize[map[string]int32](f, data)
		require.NoError(t, err)
		require.Equal(t, original, result)
	})

	t.Run("NilPointer", func(t *testing.T) {
		type Leaf struct{ V int32 }
		data, err := Serialize[*Leaf](f, nil)
		require.NoError(t, err)
		result, err := Deserialize[*Leaf](f, data)
		require.NoError(t, err)
		require.Nil(t, result)
	})
}

func TestDeserializeAnyKeepsGoTypes(t *testing.T) {
	f := New()
	data, err := f.Serialize([]any{int32(1), "two", 3.0, []string{"x"}, map[string]int64{"k": 9}, nil})
	require.NoError(t, err)
	v, err := f.DeserializeAny(data)
	require.NoError(t, err)
	require.Equal(t, []any{int32(1), "two", 3.0, []string{"x"}, map[string]int64{"k": 9}, nil}, v)
}
