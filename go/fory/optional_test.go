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

	"github.com/chaokunyang/fory/go/fory/optional"
)

type profile struct {
	Name  string
	Age   optional.Optional[int32]
	Nick  optional.Optional[string]
	Score optional.Optional[float64]
}

type profilePtr struct {
	Name  string
	Age   *int32
	Nick  *string
	Score *float64
}

func TestOptionalFieldsRoundTrip(t *testing.T) {
	for _, compatible := range []bool{false, true} {
		f := New(WithCompatible(compatible))
		in := profile{Name: "eve", Age: optional.Some(int32(30)), Score: optional.Some(0.25)}
		data, err := f.Serialize(in)
		require.NoError(t, err)
		var out profile
		require.NoError(t, f.Deserialize(data, &out))
		require.Equal(t, in, out)
		require.True(t, out.Nick.IsNone())
	}
}

func TestOptionalMatchesPointerLayout(t *testing.T) {
	writer := New(WithCompatible(true))
	require.NoError(t, writer.RegisterNamedStruct(profilePtr{}, "demo", "Profile"))
	reader := New(WithCompatible(true))
	require.NoError(t, reader.RegisterNamedStruct(profile{}, "demo", "Profile"))

	age := int32(44)
	data, err := writer.Serialize(profilePtr{Name: "finn", Age: &age})
	require.NoError(t, err)
	var out profile
	require.NoError(t, reader.Deserialize(data, &out))
	require.Equal(t, profile{Name: "finn", Age: optional.Some(int32(44))}, out)
	require.Empty(t, reader.SchemaMismatches())
}

func TestOptionalOfContainerIsRejected(t *testing.T) {
	type bad struct {
		Items optional.Optional[[]int32]
	}
	_, err := New().Serialize(bad{})
	require.ErrorIs(t, err, ErrUnsupportedType)
}
