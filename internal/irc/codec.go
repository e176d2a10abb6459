package irc

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/ergochat/irc-go/ircmsg"
)

// MaxLineLen is the longest protocol line we accept or emit, including the
// trailing CRLF (RFC 1459 section 2.3).
const MaxLineLen = 512

// Decoder converts a raw byte stream into parsed IRC messages. It owns the
// unconsumed remainder between reads, so a line split across two reads is
// reassembled transparently. The zero value is not usable; call NewDecoder.
type Decoder struct {
	buf      []byte
	overflow bool // current line already exceeded MaxLineLen
}

// NewDecoder returns a Decoder ready to accept stream data.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Push appends stream data and returns every complete message found, plus one
// framing error per rejected line. Oversized or malformed lines are skipped
// without disturbing later line boundaries. Any trailing fragment stays
// buffered for the next Push.
func (d *Decoder) Push(data []byte) ([]ircmsg.Message, []error) {
	var msgs []ircmsg.Message
	var errs []error

	d.buf = append(d.buf, data...)

	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}

		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]

		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}

		if d.overflow {
			// Tail of a line whose head was already discarded. Swallow it
			// and resynchronize on this boundary.
			d.overflow = false
			continue
		}

		if len(line) == 0 {
			continue
		}
		if len(line) > MaxLineLen-2 {
			errs = append(errs, errors.Mark(errors.Newf("line exceeds %d bytes", MaxLineLen), ErrFraming))
			continue
		}

		msg, err := ircmsg.ParseLine(string(line))
		if err != nil {
			errs = append(errs, errors.Mark(errors.Wrap(err, "parse line"), ErrFraming))
			continue
		}
		msgs = append(msgs, msg)
	}

	// A peer that never sends a terminator must not grow the buffer without
	// bound. Discard the fragment and remember to skip its tail.
	if len(d.buf) > MaxLineLen {
		d.buf = d.buf[:0]
		d.overflow = true
		errs = append(errs, errors.Mark(errors.Newf("unterminated line exceeds %d bytes", MaxLineLen), ErrFraming))
	}

	return msgs, errs
}

// Encode serializes a message to its CRLF-terminated wire form. Messages that
// would exceed MaxLineLen, or whose parameters embed a line terminator, are
// rejected with a framing error.
func Encode(msg ircmsg.Message) ([]byte, error) {
	line, err := msg.LineBytes()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "encode message"), ErrFraming)
	}
	if len(line) > MaxLineLen {
		return nil, errors.Mark(errors.Newf("encoded line exceeds %d bytes", MaxLineLen), ErrFraming)
	}
	return line, nil
}
