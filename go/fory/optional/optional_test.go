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

package optional

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptional(t *testing.T) {
	o := Some(3)
	require.True(t, o.IsSome())
	v, ok := o.Get()
	require.True(t, ok)
	require.Equal(t, 3, v)
	require.Equal(t, 3, *o.Ptr())

	empty := None[int]()
	require.True(t, empty.IsNone())
	require.Nil(t, empty.Ptr())
	require.Equal(t, 7, empty.UnwrapOr(7))

	empty.Set(9)
	require.Equal(t, Some(9), empty)
}

func TestFromPtr(t *testing.T) {
	n := int64(5)
	require.Equal(t, Some(int64(5)), FromPtr(&n))
	require.Equal(t, None[int64](), FromPtr[int64](nil))
}
