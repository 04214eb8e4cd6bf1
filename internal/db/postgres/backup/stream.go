// Copyright 2025 pgsubset
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backup

import "io"

// StreamStats describes the traffic observed by a CountingWriter.
type StreamStats struct {
	BytesWritten  int64
	ChunksWritten int64
	AvgChunkSize  float64
}

// CountingWriter is the instrumented pass-through the COPY stream is pumped
// through. It forwards every chunk byte for byte to the underlying sink and
// only tracks totals; encoding correctness belongs entirely to the
// producing side.
type CountingWriter struct {
	w             io.Writer
	bytesWritten  int64
	chunksWritten int64
}

func NewCountingWriter(w io.Writer) *CountingWriter {
	return &CountingWriter{w: w}
}

func (cw *CountingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.bytesWritten += int64(n)
	cw.chunksWritten++
	return n, err
}

// Flush propagates to the sink when it supports flushing.
func (cw *CountingWriter) Flush() error {
	if f, ok := cw.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close propagates to the sink when it supports closing.
func (cw *CountingWriter) Close() error {
	if c, ok := cw.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (cw *CountingWriter) Stats() StreamStats {
	return StreamStats{
		BytesWritten:  cw.bytesWritten,
		ChunksWritten: cw.chunksWritten,
		AvgChunkSize:  float64(cw.bytesWritten) / float64(max(cw.chunksWritten, 1)),
	}
}
