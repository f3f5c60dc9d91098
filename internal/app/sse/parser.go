package sse

import (
	"bytes"
	"strconv"
	"strings"
	"time"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Parser decodes a text/event-stream byte stream incrementally.
// Chunks may split lines, CRLF pairs or multi-byte characters anywhere.
type Parser struct {
	dispatch func(Message)
	onRetry  func(time.Duration)

	line      []byte
	pendingCR bool
	started   bool

	data    []byte
	hasData bool
	event   string
	lastID  string
}

// NewParser creates a parser delivering complete frames to dispatch
func NewParser(dispatch func(Message), onRetry func(time.Duration)) *Parser {
	return &Parser{
		dispatch: dispatch,
		onRetry:  onRetry,
	}
}

// Write feeds a chunk of the stream
func (p *Parser) Write(b []byte) (int, error) {
	n := len(b)

	if !p.started {
		if len(p.line)+len(b) < len(bom) && bytes.HasPrefix(bom, append(p.line, b...)) {
			p.line = append(p.line, b...)
			return n, nil
		}

		b = append(p.line, b...)
		p.line = nil
		b = bytes.TrimPrefix(b, bom)
		p.started = true
	}

	for len(b) > 0 {
		if p.pendingCR {
			p.pendingCR = false

			if b[0] == '\n' {
				b = b[1:]
				continue
			}
		}

		i := bytes.IndexAny(b, "\r\n")
		if i < 0 {
			p.line = append(p.line, b...)
			break
		}

		p.line = append(p.line, b[:i]...)
		p.pendingCR = b[i] == '\r'
		b = b[i+1:]

		p.processLine(p.line)
		p.line = p.line[:0]
	}

	return n, nil
}

// LastEventID returns the id of the last frame carrying one
func (p *Parser) LastEventID() string {
	return p.lastID
}

func (p *Parser) processLine(line []byte) {
	if len(line) == 0 {
		p.dispatchEvent()
		return
	}

	if line[0] == ':' {
		return
	}

	var field, value []byte

	if i := bytes.IndexByte(line, ':'); i >= 0 {
		field = line[:i]
		value = line[i+1:]

		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}
	} else {
		field = line
	}

	switch string(field) {
	case "event":
		p.event = string(value)
	case "data":
		p.data = append(p.data, value...)
		p.data = append(p.data, '\n')
		p.hasData = true
	case "id":
		if bytes.IndexByte(value, 0) < 0 {
			p.lastID = string(value)
		}
	case "retry":
		if ms, err := strconv.ParseUint(string(value), 10, 32); err == nil && p.onRetry != nil {
			p.onRetry(time.Duration(ms) * time.Millisecond)
		}
	}
}

// dispatchEvent emits the pending frame; named frames are emitted even without data
func (p *Parser) dispatchEvent() {
	if !p.hasData && p.event == "" {
		return
	}

	data := strings.ToValidUTF8(string(bytes.TrimSuffix(p.data, []byte{'\n'})), "�")

	name := p.event
	if name == "" {
		name = "message"
	}

	msg := Message{
		ID:   p.lastID,
		Name: name,
		Data: data,
	}

	p.data = p.data[:0]
	p.hasData = false
	p.event = ""

	p.dispatch(msg)
}
