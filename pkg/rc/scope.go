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

// Scope drops the strong handles it holds, in reverse order, when closed.
//
//	sc := &rc.Scope{}
//	defer sc.Close()
//	a := rc.Hold(sc, rc.New(x))
type Scope struct {
	drops []func()
}

// Hold registers s with sc and returns it.
func Hold[T any](sc *Scope, s *Strong[T]) *Strong[T] {
	sc.drops = append(sc.drops, s.Drop)
	return s
}

// Close drops every held handle, last held first. Handles dropped
// earlier by the caller are skipped.
func (sc *Scope) Close() {
	for i := len(sc.drops) - 1; i >= 0; i-- {
		sc.drops[i]()
	}
	sc.drops = nil
}

// Len returns the number of handles held.
func (sc *Scope) Len() int {
	return len(sc.drops)
}
