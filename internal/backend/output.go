// SPDX-License-Identifier: MPL-2.0

package backend

import (
	"bytes"
	"strings"
	"sync"
)

// lineWriter splits written bytes into lines and forwards each to an
// OutputFunc. It is shared by stdout and stderr of one execution.
type lineWriter struct {
	mu        sync.Mutex
	component string
	fn        OutputFunc
	buf       bytes.Buffer
}

func newLineWriter(component string, fn OutputFunc) *lineWriter {
	return &lineWriter{component: component, fn: fn}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	if w.fn == nil {
		return len(p), nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Incomplete line: keep it for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(p), nil
		}
		w.fn(w.component, strings.TrimRight(line, "\r\n"))
	}
}

// Flush emits a trailing line that was not newline-terminated.
func (w *lineWriter) Flush() {
	if w.fn == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.fn(w.component, strings.TrimRight(w.buf.String(), "\r\n"))
		w.buf.Reset()
	}
}
