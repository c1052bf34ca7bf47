// copyright 2021 - 2023 matrix origin
//
// licensed under the apache license, version 2.0 (the "license");
// you may not use this file except in compliance with the license.
// you may obtain a copy of the license at
//
//      http://www.apache.org/licenses/license-2.0
//
// unless required by applicable law or agreed to in writing, software
// distributed under the license is distributed on an "as is" basis,
// without warranties or conditions of any kind, either express or implied.
// see the license for the specific language governing permissions and
// limitations under the license.

// Package buffer hands out memory that lives outside the Go heap.
//
// Chunks are mapped with mmap and released with munmap in Free, so the
// lifetime of everything allocated from a Buffer is deterministic and
// invisible to the garbage collector. For the same reason a Buffer can
// only hold values without Go pointers: the collector never scans it.
package buffer

import (
	"fmt"
	"reflect"
	"unsafe"
)

// Buffer is a bump allocator over mmap'd chunks. It is not safe for
// concurrent use.
type Buffer struct {
	chunkSize int
	chunks    [][]byte
	cur       []byte
	off       int
	used      int
	freed     bool
}

// Stats describes the memory held by a Buffer.
type Stats struct {
	Chunks int
	Mapped int
	Used   int
}

func New() *Buffer {
	return NewWithChunkSize(pageSize())
}

// NewWithChunkSize returns a Buffer whose chunks are n bytes rounded up to
// a whole number of pages.
func NewWithChunkSize(n int) *Buffer {
	ps := pageSize()
	if n <= 0 {
		n = ps
	}
	return &Buffer{chunkSize: roundUp(n, ps)}
}

// Alloc returns zeroed storage for a T inside b. It panics if T holds Go
// pointers or if b was freed.
func Alloc[T any](b *Buffer) *T {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if hasPointers(typ) {
		panic(fmt.Sprintf("buffer: %v contains Go pointers and cannot live off-heap", typ))
	}
	return (*T)(b.alloc(int(typ.Size()), typ.Align()))
}

func (b *Buffer) alloc(size, align int) unsafe.Pointer {
	if b.freed {
		panic("buffer: alloc after Free")
	}
	if size == 0 {
		size = 1
	}
	if size > b.chunkSize {
		chunk := b.mapChunk(roundUp(size, pageSize()))
		b.used += size
		return unsafe.Pointer(&chunk[0])
	}
	off := roundUp(b.off, align)
	if b.cur == nil || off+size > len(b.cur) {
		b.cur = b.mapChunk(b.chunkSize)
		off = 0
	}
	p := unsafe.Pointer(&b.cur[off])
	b.off = off + size
	b.used += size
	return p
}

func (b *Buffer) mapChunk(n int) []byte {
	chunk, err := mmap(n)
	if err != nil {
		panic(fmt.Sprintf("buffer: map %d bytes: %v", n, err))
	}
	b.chunks = append(b.chunks, chunk)
	return chunk
}

// Free unmaps every chunk. Pointers returned by Alloc must not be used
// afterwards. Calling Free more than once is a no-op.
func (b *Buffer) Free() {
	if b.freed {
		return
	}
	for _, chunk := range b.chunks {
		// munmap only fails on ranges we never mapped
		_ = munmap(chunk)
	}
	b.chunks = nil
	b.cur = nil
	b.off = 0
	b.freed = true
}

// Freed reports whether Free has been called.
func (b *Buffer) Freed() bool {
	return b.freed
}

func (b *Buffer) Stats() Stats {
	s := Stats{Chunks: len(b.chunks), Used: b.used}
	for _, chunk := range b.chunks {
		s.Mapped += len(chunk)
	}
	return s
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func roundUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
