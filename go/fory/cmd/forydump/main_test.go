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

package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chaokunyang/fory/go/fory"
)

type line struct {
	SKU string
	Qty int32
}

type order struct {
	ID    int64
	Lines []any
	Note  string
}

func writeOrder(t *testing.T) []byte {
	t.Helper()
	f := fory.New(fory.WithCompatible(true))
	require.NoError(t, f.RegisterNamedStruct(order{}, "shop", "Order"))
	require.NoError(t, f.RegisterNamedStruct(line{}, "shop", "Line"))
	data, err := f.Serialize(&order{
		ID:    12,
		Lines: []any{&line{SKU: "a-1", Qty: 2}},
		Note:  "rush",
	})
	require.NoError(t, err)
	return data
}

func TestRunPrintsPlaceholders(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "order.bin")
	require.NoError(t, os.WriteFile(input, writeOrder(t), 0o600))
	config := filepath.Join(dir, "fory.yaml")
	require.NoError(t, os.WriteFile(config, []byte("compatible: true\n"), 0o600))

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"--config", config, "--verify", input}, &stdout, &stderr))
	out := stdout.String()
	require.Contains(t, out, "shop.Order {")
	require.Contains(t, out, "shop.Line {")
	require.Contains(t, out, `sku: "a-1"`)
	require.Contains(t, out, `note: "rush"`)
	require.Contains(t, out, "re-encoding matches input")
}

func TestRunHexInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "order.hex")
	require.NoError(t, os.WriteFile(input, []byte(hex.EncodeToString(writeOrder(t))+"\n"), 0o600))

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"--hex", input}, &stdout, &stderr))
	require.Contains(t, stdout.String(), "id: 12")
}

func TestRunErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Error(t, run(nil, &stdout, &stderr))
	require.Error(t, run([]string{filepath.Join(t.TempDir(), "missing")}, &stdout, &stderr))

	bad := filepath.Join(t.TempDir(), "bad.bin")
	require.NoError(t, os.WriteFile(bad, []byte{0x00, 0x01, 0x02}, 0o600))
	err := run([]string{bad}, &stdout, &stderr)
	require.ErrorIs(t, err, fory.ErrMagicNumber)
}
