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
	"fmt"

	"ownership_experiment/pkg/config"
	"ownership_experiment/pkg/diag"
)

// Option configures a Heap.
type Option func(*Heap) error

// WithChunkSize sets the size of the off-heap chunks holding control
// blocks. Zero means one page.
func WithChunkSize(n int) Option {
	return func(h *Heap) error {
		if n < 0 {
			return fmt.Errorf("rc: invalid chunk size %d", n)
		}
		h.chunkSize = n
		return nil
	}
}

// WithConfig applies the heap section of a configuration file.
func WithConfig(cfg config.Heap) Option {
	return func(h *Heap) error {
		if err := WithChunkSize(cfg.ChunkSize)(h); err != nil {
			return err
		}
		h.reportLeaks = cfg.ReportLeaks
		return nil
	}
}

// WithHandler routes the heap's diagnostics to dh instead of the global
// diag handler.
func WithHandler(dh diag.Handler) Option {
	return func(h *Heap) error {
		h.handler = dh
		return nil
	}
}
