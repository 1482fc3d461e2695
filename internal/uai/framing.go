// internal/uai/framing.go
package uai

import "bytes"

// reassembler turns the controller's raw byte stream back into discrete
// protocol units. Before negotiation completes the units are fixed prompt
// tokens matched as a prefix of the buffered content; afterwards they are
// newline-terminated lines. Content is only ever consumed from the front
// of the buffer, so no unit can be skipped or duplicated however the
// stream is split into read chunks.
type reassembler struct {
	buf []byte
}

// feed appends a raw chunk to the buffer.
func (r *reassembler) feed(chunk []byte) {
	r.buf = append(r.buf, chunk...)
}

// consumeToken strips token from the front of the buffer if the buffer
// currently starts with it.
func (r *reassembler) consumeToken(token string) bool {
	if !bytes.HasPrefix(r.buf, []byte(token)) {
		return false
	}
	r.buf = r.buf[len(token):]
	return true
}

// nextLine returns the next complete line without its terminator. A
// trailing fragment after the last newline stays buffered for the next
// chunk.
func (r *reassembler) nextLine() ([]byte, bool) {
	i := bytes.IndexByte(r.buf, '\n')
	if i < 0 {
		return nil, false
	}
	line := r.buf[:i]
	r.buf = r.buf[i+1:]
	// Controllers terminate lines with CRLF on some firmware revisions.
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return line, true
}

// pending reports how many bytes are buffered but not yet consumable.
func (r *reassembler) pending() int {
	return len(r.buf)
}
