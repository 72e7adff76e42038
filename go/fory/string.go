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
	"unicode/utf8"
)

// Encoding type constants
const (
	encodingLatin1 = iota
	encodingUTF16LE
	encodingUTF8
)

// writeString writes a varuint header (byte length << 2 | encoding) and the
// bytes. ASCII strings are tagged Latin1.
func writeString(buf *ByteBuffer, value string) {
	encoding := uint64(encodingLatin1)
	if !isLatin1(value) {
		encoding = encodingUTF8
	}
	buf.WriteVarUint64(uint64(len(value))<<2 | encoding)
	buf.WriteBinary([]byte(value))
}

func readString(buf *ByteBuffer) (string, error) {
	header := buf.ReadVarUint64()
	size := header >> 2
	if size > uint64(buf.Remaining()) {
		if buf.Err() != nil {
			return "", buf.Err()
		}
		return "", desyncf(buf, "string of %d bytes exceeds remaining %d", size, buf.Remaining())
	}
	data := buf.ReadBinary(int(size))
	switch header & 0b11 {
	case encodingLatin1:
		return readLatin1(data), nil
	case encodingUTF8:
		if !utf8.Valid(data) {
			return "", desyncf(buf, "invalid UTF-8 string payload")
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("fory: unsupported string encoding %d", header&0b11)
	}
}

// isLatin1 checks if a string contains only ASCII characters (0-127)
func isLatin1(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

func readLatin1(data []byte) string {
	for _, c := range data {
		if c > 127 {
			runes := make([]rune, len(data))
			for i, b := range data {
				runes[i] = rune(b)
			}
			return string(runes)
		}
	}
	return string(data)
}

type stringSerializer struct{}

func (s stringSerializer) TypeId() TypeId       { return STRING }
func (s stringSerializer) NeedToWriteRef() bool { return false }

func (s stringSerializer) WriteData(ctx *WriteContext, value reflect.Value) error {
	writeString(ctx.buffer, value.String())
	return nil
}

func (s stringSerializer) ReadData(ctx *ReadContext, type_ reflect.Type, value reflect.Value) error {
	str, err := readString(ctx.buffer)
	if err != nil {
		return err
	}
	if value.Kind() != reflect.String {
		return fmt.Errorf("%w: cannot decode string into %v", ErrTypeMismatch, value.Type())
	}
	value.SetString(str)
	return nil
}

// binarySerializer handles []byte as one length-prefixed block.
type binarySerializer struct{}

func (s binarySerializer) TypeId() TypeId       { return BINARY }
func (s binarySerializer) NeedToWriteRef() bool { return true }

func (s binarySerializer) WriteData(ctx *WriteContext, value reflect.Value) error {
	ctx.buffer.WriteVarUint32(uint32(value.Len()))
	ctx.buffer.WriteBinary(value.Bytes())
	return nil
}

func (s binarySerializer) ReadData(ctx *ReadContext, type_ reflect.Type, value reflect.Value) error {
	buf := ctx.buffer
	n := int(buf.ReadVarUint32())
	if n > buf.Remaining() {
		return desyncf(buf, "binary of %d bytes exceeds remaining %d", n, buf.Remaining())
	}
	data := make([]byte, n)
	copy(data, buf.ReadBinary(n))
	if value.Kind() != reflect.Slice || value.Type().Elem().Kind() != reflect.Uint8 {
		return fmt.Errorf("%w: cannot decode binary into %v", ErrTypeMismatch, value.Type())
	}
	v := reflect.ValueOf(data)
	if value.Type() != byteSliceType {
		v = v.Convert(value.Type())
	}
	value.Set(v)
	ctx.refReader.Reference(v)
	return nil
}
