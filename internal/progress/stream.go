// SPDX-License-Identifier: MPL-2.0

package progress

import (
	"strings"
	"sync"

	"github.com/devtask/devtask/pkg/types"
)

type (
	// Message is one item on a Stream. The last message of every stream has
	// Done set and carries the terminal exit code.
	Message struct {
		Line string
		Done bool
		Code types.ExitCode
	}

	// Stream is the single ordered output of a run. Producers never block:
	// messages queue internally and a pump delivers them to Messages() in
	// order. Consumers must drain Messages() until it is closed.
	Stream struct {
		mu     sync.Mutex
		cond   *sync.Cond
		queue  []Message
		closed bool
		out    chan Message
	}
)

var _ Sink = (*Stream)(nil)

// NewStream creates a Stream whose delivery channel has the given buffer.
func NewStream(buffer int) *Stream {
	if buffer < 0 {
		buffer = 0
	}
	s := &Stream{out: make(chan Message, buffer)}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

// Messages returns the delivery channel. It is closed after the terminal message.
func (s *Stream) Messages() <-chan Message {
	return s.out
}

// Emit renders e and writes it.
func (s *Stream) Emit(e Event) {
	s.Write(e.Line())
}

// Write queues one line, appending "\n" when missing. Writes after Close
// are dropped.
func (s *Stream) Write(line string) {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	s.enqueue(Message{Line: line}, false)
}

// Close queues the terminal message. Only the first call has an effect.
func (s *Stream) Close(code types.ExitCode) {
	s.enqueue(Message{Done: true, Code: code}, true)
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) enqueue(m Message, terminal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, m)
	if terminal {
		s.closed = true
	}
	s.cond.Signal()
}

func (s *Stream) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		batch := s.queue
		s.queue = nil
		done := s.closed
		s.mu.Unlock()

		for _, m := range batch {
			s.out <- m
		}
		if done {
			return
		}
	}
}

// Collect drains ch and returns the lines and the terminal code. It is a
// convenience for callers that do not stream.
func Collect(ch <-chan Message) ([]string, types.ExitCode) {
	var (
		lines []string
		code  types.ExitCode
	)
	for m := range ch {
		if m.Done {
			code = m.Code
			continue
		}
		lines = append(lines, strings.TrimSuffix(m.Line, "\n"))
	}
	return lines, code
}
