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

//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package buffer

import "unsafe"

// Without mmap the chunks come from the Go heap. Backing them with uint64
// words keeps every chunk 8-byte aligned.

func pageSize() int {
	return 4096
}

func mmap(n int) ([]byte, error) {
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n), nil
}

func munmap([]byte) error {
	return nil
}
