package irc

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ergochat/irc-go/ircmsg"
)

func TestDecodeSimpleLine(t *testing.T) {
	d := NewDecoder()
	msgs, errs := d.Push([]byte(":nick!user@host PRIVMSG #chan :hello world\r\n"))

	if len(errs) != 0 {
		t.Fatalf("Unexpected errors: %v", errs)
	}
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}

	m := msgs[0]
	if m.Source != "nick!user@host" {
		t.Errorf("Expected source nick!user@host, got %q", m.Source)
	}
	if m.Command != "PRIVMSG" {
		t.Errorf("Expected command PRIVMSG, got %q", m.Command)
	}
	if len(m.Params) != 2 || m.Params[0] != "#chan" || m.Params[1] != "hello world" {
		t.Errorf("Unexpected params: %v", m.Params)
	}
}

func TestDecodeSplitRead(t *testing.T) {
	d := NewDecoder()

	msgs, errs := d.Push([]byte(":server PING :token"))
	if len(msgs) != 0 || len(errs) != 0 {
		t.Fatalf("Partial line should yield nothing, got %d msgs %d errs", len(msgs), len(errs))
	}

	msgs, errs = d.Push([]byte("123\r\nJOIN #chan\r\n"))
	if len(errs) != 0 {
		t.Fatalf("Unexpected errors: %v", errs)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Command != "PING" || msgs[0].Params[0] != "token123" {
		t.Errorf("Split line not reassembled: %v", msgs[0])
	}
	if msgs[1].Command != "JOIN" {
		t.Errorf("Expected JOIN after reassembled line, got %q", msgs[1].Command)
	}
}

func TestDecodeOversizedLine(t *testing.T) {
	d := NewDecoder()

	long := "PRIVMSG #chan :" + strings.Repeat("x", MaxLineLen)
	msgs, errs := d.Push([]byte(long + "\r\nPING :after\r\n"))

	if len(errs) != 1 {
		t.Fatalf("Expected 1 framing error, got %d", len(errs))
	}
	if !errors.Is(errs[0], ErrFraming) {
		t.Errorf("Expected ErrFraming, got %v", errs[0])
	}
	if len(msgs) != 1 || msgs[0].Command != "PING" {
		t.Errorf("Line after oversized line should still parse, got %v", msgs)
	}
}

func TestDecodeUnterminatedOverflow(t *testing.T) {
	d := NewDecoder()

	// Head of an endless line: rejected once, without a terminator in sight.
	_, errs := d.Push([]byte(strings.Repeat("y", MaxLineLen+100)))
	if len(errs) != 1 || !errors.Is(errs[0], ErrFraming) {
		t.Fatalf("Expected one framing error, got %v", errs)
	}

	// More of the same line, then finally a terminator and a good line.
	msgs, errs := d.Push([]byte("tail of the monster\r\nPING :ok\r\n"))
	if len(errs) != 0 {
		t.Errorf("Tail of discarded line should be silent, got %v", errs)
	}
	if len(msgs) != 1 || msgs[0].Command != "PING" {
		t.Errorf("Expected resync on next boundary, got %v", msgs)
	}
}

func TestDecodeIdempotent(t *testing.T) {
	input := []byte(":a PRIVMSG #c :one\r\n:b PRIVMSG #c :two\r\n")

	first, _ := NewDecoder().Push(input)
	second, _ := NewDecoder().Push(input)

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("Expected 2 messages each, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Command != second[i].Command || first[i].Params[1] != second[i].Params[1] {
			t.Errorf("Decode not idempotent at %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	lines := []string{
		":nick!user@host PRIVMSG #chan :hello world\r\n",
		"PING LAG123\r\n",
		":irc.example.org 001 kestrel :Welcome to IRC\r\n",
		"JOIN #chan\r\n",
	}

	for _, line := range lines {
		msgs, errs := NewDecoder().Push([]byte(line))
		if len(errs) != 0 || len(msgs) != 1 {
			t.Fatalf("Decode %q: %d msgs, errs %v", line, len(msgs), errs)
		}

		out, err := Encode(msgs[0])
		if err != nil {
			t.Fatalf("Encode %q failed: %v", line, err)
		}
		if string(out) != line {
			t.Errorf("Round trip mismatch:\n in  %q\n out %q", line, out)
		}
	}
}

func TestEncodeRejectsEmbeddedNewline(t *testing.T) {
	msg := ircmsg.MakeMessage(nil, "", "PRIVMSG", "#chan", "evil\r\nQUIT")
	if _, err := Encode(msg); err == nil {
		t.Error("Expected error encoding param with embedded line terminator")
	}
}

func TestEncodeRejectsOversized(t *testing.T) {
	msg := ircmsg.MakeMessage(nil, "", "PRIVMSG", "#chan", strings.Repeat("x", MaxLineLen))
	if _, err := Encode(msg); !errors.Is(err, ErrFraming) {
		t.Errorf("Expected ErrFraming for oversized message, got %v", err)
	}
}
