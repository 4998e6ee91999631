package capture

import "bytes"

// Splitter turns a chunked byte stream into LF-terminated lines. A trailing
// fragment is held until the next chunk completes it or Flush is called.
// Carriage returns are kept in the line content.
type Splitter struct {
	pending []byte
}

// Feed consumes one chunk and returns the lines it completed.
func (s *Splitter) Feed(chunk []byte) []string {
	var lines []string
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			s.pending = append(s.pending, chunk...)
			break
		}
		if len(s.pending) > 0 {
			s.pending = append(s.pending, chunk[:i]...)
			lines = append(lines, string(s.pending))
			s.pending = s.pending[:0]
		} else {
			lines = append(lines, string(chunk[:i]))
		}
		chunk = chunk[i+1:]
	}
	return lines
}

// Flush returns the pending fragment at end of stream, if any.
func (s *Splitter) Flush() (string, bool) {
	if len(s.pending) == 0 {
		return "", false
	}
	line := string(s.pending)
	s.pending = s.pending[:0]
	return line, true
}

// Pending returns the number of buffered bytes not yet emitted as a line.
func (s *Splitter) Pending() int {
	return len(s.pending)
}
