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

type userV1 struct {
	Name string
	Age  int32
}

type userV2 struct {
	Name  string
	Age   int64
	Email string
}

func newCompatible(t *testing.T, type_ any, opts ...Option) *Fory {
	t.Helper()
	f := New(append([]Option{WithCompatible(true)}, opts...)...)
	require.NoError(t, f.RegisterNamedStruct(type_, "demo", "User"))
	return f
}

func TestCompatibleAddAndWidenFields(t *testing.T) {
	writer := newCompatible(t, userV1{})
	reader := newCompatible(t, userV2{})

	data, err := writer.Serialize(userV1{Name: "ann", Age: 41})
	require.NoError(t, err)

	var out userV2
	require.NoError(t, reader.Deserialize(data, &out))
	require.Equal(t, userV2{Name: "ann", Age: 41}, out)

	mismatches := reader.SchemaMismatches()
	require.Len(t, mismatches, 1)
	require.Equal(t, "demo.User", mismatches[0].TypeName)
	require.NotEqual(t, mismatches[0].Expected, mismatches[0].Actual)

	// a matching payload clears the record
	data, err = reader.Serialize(out)
	require.NoError(t, err)
	require.NoError(t, reader.Deserialize(data, &out))
	require.Empty(t, reader.SchemaMismatches())
}

func TestCompatibleDropsRemovedFields(t *testing.T) {
	writer := newCompatible(t, userV2{})
	reader := newCompatible(t, userV1{})

	data, err := writer.Serialize(&userV2{Name: "bob", Age: 7, Email: "bob@example.com"})
	require.NoError(t, err)

	var out *userV1
	require.NoError(t, reader.Deserialize(data, &out))
	require.Equal(t, &userV1{Name: "bob", Age: 7}, out)
}

func TestCompatibleResetsFieldsMissingFromStream(t *testing.T) {
	writer := newCompatible(t, userV1{})
	reader := newCompatible(t, userV2{})

	data, err := writer.Serialize(userV1{Name: "ann", Age: 41})
	require.NoError(t, err)

	out := userV2{Name: "old", Age: 9, Email: "stale@example.com"}
	require.NoError(t, reader.Deserialize(data, &out))
	require.Equal(t, userV2{Name: "ann", Age: 41}, out)
}

func TestCompatibleNarrowingOverflowKeepsZero(t *testing.T) {
	writer := newCompatible(t, userV2{})
	reader := newCompatible(t, userV1{})

	data, err := writer.Serialize(userV2{Name: "big", Age: 1 << 40})
	require.NoError(t, err)
	var out userV1
	require.NoError(t, reader.Deserialize(data, &out))
	require.Equal(t, userV1{Name: "big"}, out)
}

func TestSchemaMismatchIsFatalWithoutCompatibleMode(t *testing.T) {
	writer := New()
	require.NoError(t, writer.RegisterStruct(userV1{}, 20))
	reader := New()
	require.NoError(t, reader.RegisterStruct(userV2{}, 20))

	data, err := writer.Serialize(userV1{Name: "ann", Age: 41})
	require.NoError(t, err)

	var out userV2
	err = reader.Deserialize(data, &out)
	var mismatch *SchemaVersionMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.ErrorIs(t, err, ErrSchemaVersionMismatch)

	// without version checks the reader trusts the layout
	lax := New(WithCheckVersion(false))
	require.NoError(t, lax.RegisterStruct(userV1{}, 20))
	data, err = lax.Serialize(userV1{Name: "ann", Age: 41})
	require.NoError(t, err)
	var back userV1
	require.NoError(t, lax.Deserialize(data, &back))
	require.Equal(t, userV1{Name: "ann", Age: 41}, back)
}

func TestFieldOrderDoesNotAffectCompatibility(t *testing.T) {
	type a struct {
		X int32
		Y string
		Z []int64
	}
	type b struct {
		Z []int64
		Y string
		X int32
	}
	writer := newCompatible(t, a{})
	reader := newCompatible(t, b{})
	data, err := writer.Serialize(a{X: 1, Y: "y", Z: []int64{3}})
	require.NoError(t, err)
	var out b
	require.NoError(t, reader.Deserialize(data, &out))
	require.Equal(t, b{X: 1, Y: "y", Z: []int64{3}}, out)
	require.Empty(t, reader.SchemaMismatches())
}

func TestSharedMetaContext(t *testing.T) {
	writer := newCompatible(t, userV1{}, WithSharedMetaContext(true))
	reader := newCompatible(t, userV1{}, WithSharedMetaContext(true))

	first, err := writer.Serialize(userV1{Name: "a", Age: 1})
	require.NoError(t, err)
	second, err := writer.Serialize(userV1{Name: "b", Age: 2})
	require.NoError(t, err)
	require.Less(t, len(second), len(first), "definition is sent once")

	var out userV1
	require.NoError(t, reader.Deserialize(first, &out))
	require.Equal(t, "a", out.Name)
	require.NoError(t, reader.Deserialize(second, &out))
	require.Equal(t, "b", out.Name)

	writer.ResetMetaContext()
	third, err := writer.Serialize(userV1{Name: "c", Age: 3})
	require.NoError(t, err)
	require.Equal(t, len(first), len(third))
}

func TestSharedMetaContextDanglingDefinition(t *testing.T) {
	writer := newCompatible(t, userV1{}, WithSharedMetaContext(true))
	reader := newCompatible(t, userV1{}, WithSharedMetaContext(true))

	first, err := writer.Serialize(userV1{Name: "a", Age: 1})
	require.NoError(t, err)
	second, err := writer.Serialize(userV1{Name: "b", Age: 2})
	require.NoError(t, err)

	var out userV1
	err = reader.Deserialize(second, &out)
	var desync *ProtocolDesyncError
	require.ErrorAs(t, err, &desync)

	// the failure poisons the context until it is reset
	err = reader.Deserialize(first, &out)
	require.ErrorIs(t, err, ErrMetaContextPoisoned)

	reader.ResetMetaContext()
	require.NoError(t, reader.Deserialize(first, &out))
	require.NoError(t, reader.Deserialize(second, &out))
	require.Equal(t, userV1{Name: "b", Age: 2}, out)
}

func TestWriteFailurePoisonsSharedContext(t *testing.T) {
	type bad struct{ C chan int }
	f := newCompatible(t, userV1{}, WithSharedMetaContext(true))
	_, err := f.Serialize(bad{})
	require.ErrorIs(t, err, ErrUnsupportedType)

	_, err = f.Serialize(userV1{Name: "a"})
	require.ErrorIs(t, err, ErrMetaContextPoisoned)

	f.ResetMetaContext()
	_, err = f.Serialize(userV1{Name: "a"})
	require.NoError(t, err)
}
