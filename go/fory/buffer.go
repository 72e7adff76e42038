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
	"encoding/binary"
	"fmt"
	"math"
)

// ByteBuffer is a growable little-endian buffer with independent reader and
// writer cursors. Reads past the writer index do not panic: they return zero
// values and record a sticky error reported by Err.
type ByteBuffer struct {
	data        []byte
	writerIndex int
	readerIndex int
	err         error
}

func NewByteBuffer(data []byte) *ByteBuffer {
	return &ByteBuffer{data: data, writerIndex: len(data)}
}

func (b *ByteBuffer) grow(n int) {
	need := b.writerIndex + n
	if need <= len(b.data) {
		return
	}
	if need <= cap(b.data) {
		b.data = b.data[:cap(b.data)]
		return
	}
	newCap := 2 * need
	if newCap < 64 {
		newCap = 64
	}
	data := make([]byte, newCap)
	copy(data, b.data[:b.writerIndex])
	b.data = data
}

// Reset clears both cursors and the sticky error, keeping the backing array.
func (b *ByteBuffer) Reset() {
	b.writerIndex = 0
	b.readerIndex = 0
	b.err = nil
}

// SetData points the buffer at data for reading.
func (b *ByteBuffer) SetData(data []byte) {
	b.data = data
	b.writerIndex = len(data)
	b.readerIndex = 0
	b.err = nil
}

func (b *ByteBuffer) WriterIndex() int { return b.writerIndex }
func (b *ByteBuffer) ReaderIndex() int { return b.readerIndex }

// SetWriterIndex truncates the written region. Used to roll back a value
// that failed half way.
func (b *ByteBuffer) SetWriterIndex(idx int) { b.writerIndex = idx }

// Remaining returns the number of unread bytes.
func (b *ByteBuffer) Remaining() int { return b.writerIndex - b.readerIndex }

// Err returns the first underflow recorded by a read.
func (b *ByteBuffer) Err() error { return b.err }

// Bytes returns a copy of the written region.
func (b *ByteBuffer) Bytes() []byte {
	out := make([]byte, b.writerIndex)
	copy(out, b.data[:b.writerIndex])
	return out
}

// Slice exposes bytes [start, end) of the written region without copying.
func (b *ByteBuffer) Slice(start, end int) []byte {
	return b.data[start:end]
}

func (b *ByteBuffer) WriteByte_(v byte) {
	b.grow(1)
	b.data[b.writerIndex] = v
	b.writerIndex++
}

func (b *ByteBuffer) WriteBool(v bool) {
	if v {
		b.WriteByte_(1)
	} else {
		b.WriteByte_(0)
	}
}

func (b *ByteBuffer) WriteInt8(v int8) { b.WriteByte_(byte(v)) }

func (b *ByteBuffer) WriteInt16(v int16) {
	b.grow(2)
	binary.LittleEndian.PutUint16(b.data[b.writerIndex:], uint16(v))
	b.writerIndex += 2
}

func (b *ByteBuffer) WriteInt32(v int32) {
	b.grow(4)
	binary.LittleEndian.PutUint32(b.data[b.writerIndex:], uint32(v))
	b.writerIndex += 4
}

func (b *ByteBuffer) WriteInt64(v int64) {
	b.grow(8)
	binary.LittleEndian.PutUint64(b.data[b.writerIndex:], uint64(v))
	b.writerIndex += 8
}

func (b *ByteBuffer) WriteFloat32(v float32) { b.WriteInt32(int32(math.Float32bits(v))) }
func (b *ByteBuffer) WriteFloat64(v float64) { b.WriteInt64(int64(math.Float64bits(v))) }

// WriteBinary appends raw bytes with no length prefix.
func (b *ByteBuffer) WriteBinary(p []byte) {
	b.grow(len(p))
	copy(b.data[b.writerIndex:], p)
	b.writerIndex += len(p)
}

// WriteVarUint32 writes v in 7-bit groups, returning the encoded length.
func (b *ByteBuffer) WriteVarUint32(v uint32) int8 {
	return b.WriteVarUint64(uint64(v))
}

func (b *ByteBuffer) WriteVarUint64(v uint64) int8 {
	b.grow(10)
	var n int8
	for v >= 0x80 {
		b.data[b.writerIndex] = byte(v) | 0x80
		b.writerIndex++
		v >>= 7
		n++
	}
	b.data[b.writerIndex] = byte(v)
	b.writerIndex++
	return n + 1
}

// WriteVarInt32 writes a zigzag encoded varint.
func (b *ByteBuffer) WriteVarInt32(v int32) int8 {
	return b.WriteVarUint32(uint32((v << 1) ^ (v >> 31)))
}

func (b *ByteBuffer) WriteVarInt64(v int64) int8 {
	return b.WriteVarUint64(uint64((v << 1) ^ (v >> 63)))
}

func (b *ByteBuffer) underflow(n int) bool {
	if b.err != nil {
		return true
	}
	if b.readerIndex+n > b.writerIndex {
		b.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrBufferUnderflow, n, b.readerIndex, b.writerIndex-b.readerIndex)
		return true
	}
	return false
}

func (b *ByteBuffer) ReadByte_() byte {
	if b.underflow(1) {
		return 0
	}
	v := b.data[b.readerIndex]
	b.readerIndex++
	return v
}

func (b *ByteBuffer) ReadBool() bool { return b.ReadByte_() != 0 }
func (b *ByteBuffer) ReadInt8() int8 { return int8(b.ReadByte_()) }

func (b *ByteBuffer) ReadInt16() int16 {
	if b.underflow(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(b.data[b.readerIndex:])
	b.readerIndex += 2
	return int16(v)
}

func (b *ByteBuffer) ReadInt32() int32 {
	if b.underflow(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(b.data[b.readerIndex:])
	b.readerIndex += 4
	return int32(v)
}

func (b *ByteBuffer) ReadInt64() int64 {
	if b.underflow(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(b.data[b.readerIndex:])
	b.readerIndex += 8
	return int64(v)
}

func (b *ByteBuffer) ReadFloat32() float32 { return math.Float32frombits(uint32(b.ReadInt32())) }
func (b *ByteBuffer) ReadFloat64() float64 { return math.Float64frombits(uint64(b.ReadInt64())) }

// ReadBinary returns the next n bytes as a window over the backing array.
func (b *ByteBuffer) ReadBinary(n int) []byte {
	if n < 0 || b.underflow(n) {
		return nil
	}
	v := b.data[b.readerIndex : b.readerIndex+n : b.readerIndex+n]
	b.readerIndex += n
	return v
}

func (b *ByteBuffer) ReadVarUint64() uint64 {
	var result uint64
	for shift := uint(0); shift < 70; shift += 7 {
		if b.underflow(1) {
			return 0
		}
		c := b.data[b.readerIndex]
		b.readerIndex++
		result |= uint64(c&0x7f) << shift
		if c < 0x80 {
			return result
		}
	}
	b.err = fmt.Errorf("%w: varint longer than 10 bytes at offset %d", ErrBufferUnderflow, b.readerIndex)
	return 0
}

func (b *ByteBuffer) ReadVarUint32() uint32 {
	v := b.ReadVarUint64()
	if v > math.MaxUint32 && b.err == nil {
		b.err = fmt.Errorf("%w: varuint32 overflow at offset %d", ErrBufferUnderflow, b.readerIndex)
		return 0
	}
	return uint32(v)
}

func (b *ByteBuffer) ReadVarInt32() int32 {
	v := b.ReadVarUint32()
	return int32(v>>1) ^ -int32(v&1)
}

func (b *ByteBuffer) ReadVarInt64() int64 {
	v := b.ReadVarUint64()
	return int64(v>>1) ^ -int64(v&1)
}
