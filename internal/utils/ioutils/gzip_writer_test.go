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

package ioutils

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

type writeCloserMock struct {
	data           []byte
	writeCallCount int
	writeCallFunc  func(callCount int) error
	closeCallCount int
	closeCallFunc  func(callCount int) error
}

func (w *writeCloserMock) Write(p []byte) (n int, err error) {
	w.writeCallCount++
	if w.writeCallFunc != nil {
		return 0, w.writeCallFunc(w.writeCallCount)
	}
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *writeCloserMock) Close() error {
	w.closeCallCount++
	if w.closeCallFunc != nil {
		return w.closeCallFunc(w.closeCallCount)
	}
	return nil
}

const sampleDocument = `COPY users (id, email) FROM stdin;
1	a@example.com
2	b@example.com
\.
`

func TestNewGzipWriter_Write(t *testing.T) {
	expectedBuf := new(bytes.Buffer)
	gzData := gzip.NewWriter(expectedBuf)
	_, err := gzData.Write([]byte(sampleDocument))
	require.NoError(t, err)
	require.NoError(t, gzData.Flush())
	require.NoError(t, gzData.Close())

	objSrc := &writeCloserMock{}
	w := NewGzipWriter(objSrc, false)
	_, err = w.Write([]byte(sampleDocument))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.Equal(t, expectedBuf.Bytes(), objSrc.data)
}

func TestNewGzipWriter_Close(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		objSrc := &writeCloserMock{}
		w := NewGzipWriter(objSrc, false)
		require.NoError(t, w.Close())
		require.Equal(t, 1, objSrc.closeCallCount)
	})

	t.Run("Flush Error", func(t *testing.T) {
		objSrc := &writeCloserMock{
			writeCallFunc: func(c int) error {
				if c == 2 {
					return errors.New("backup file error")
				}
				return nil
			},
		}
		w := NewGzipWriter(objSrc, false)
		_, err := w.Write([]byte(sampleDocument))
		require.NoError(t, err)

		err = w.Close()
		require.Error(t, err)
		require.ErrorContains(t, err, "error closing gzip writer")
		require.Equal(t, 1, objSrc.closeCallCount)
		require.Equal(t, 2, objSrc.writeCallCount)
	})

	t.Run("Close Error", func(t *testing.T) {
		objSrc := &writeCloserMock{
			closeCallFunc: func(c int) error {
				return errors.New("backup file error")
			},
		}
		w := NewGzipWriter(objSrc, false)
		err := w.Close()
		require.Error(t, err)
		require.Equal(t, 1, objSrc.closeCallCount)
	})
}

type readCloserMock struct {
	*bytes.Reader
	closeCallCount int
}

func (r *readCloserMock) Close() error {
	r.closeCallCount++
	return nil
}

func TestGzipReader_RoundTrip(t *testing.T) {
	for _, usePgzip := range []bool{false, true} {
		buf := new(bytes.Buffer)
		gz := gzip.NewWriter(buf)
		_, err := gz.Write([]byte(sampleDocument))
		require.NoError(t, err)
		require.NoError(t, gz.Close())

		src := &readCloserMock{Reader: bytes.NewReader(buf.Bytes())}
		r, err := NewGzipReader(src, usePgzip)
		require.NoError(t, err)

		restored, err := io.ReadAll(r)
		require.NoError(t, err)
		require.Equal(t, sampleDocument, string(restored))

		require.NoError(t, r.Close())
		require.Equal(t, 1, src.closeCallCount)
	}
}

func TestNewGzipReader_InvalidStream(t *testing.T) {
	src := &readCloserMock{Reader: bytes.NewReader([]byte("not gzip at all"))}
	_, err := NewGzipReader(src, false)
	require.Error(t, err)
	require.Equal(t, 1, src.closeCallCount)
}
