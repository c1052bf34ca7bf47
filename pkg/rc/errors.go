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

package rc

import (
	"errors"
	"fmt"
)

// ErrExpired matches every *ExpiredError.
var ErrExpired = errors.New("rc: object is not alive anymore")

// ExpiredError is returned when a weak handle is dereferenced after its
// cell was destroyed.
type ExpiredError struct {
	Type string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("rc: cannot access %s: the object is not alive anymore", e.Type)
}

func (e *ExpiredError) Is(target error) bool {
	return target == ErrExpired
}

// LeakError is returned by Heap.Close when cells are still alive,
// usually because they strongly reference each other.
type LeakError struct {
	Live int
}

func (e *LeakError) Error() string {
	return fmt.Sprintf("rc: %d cell(s) still alive", e.Live)
}
