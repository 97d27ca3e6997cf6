package chatclient

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/recipeassist/recipe-assistant/internal/wire"
)

// SplitConcatenated recovers the JSON documents of one read from a stream
// written back to back with no delimiter. It splits on "}{" and restores the
// braces the split removed. A document whose string values contain "}{" is
// split incorrectly; the broken pieces then fail to parse and are dropped.
func SplitConcatenated(raw string) []string {
	parts := strings.Split(raw, "}{")
	if len(parts) == 1 {
		return parts
	}
	last := len(parts) - 1
	for i := range parts {
		switch i {
		case 0:
			parts[i] = parts[i] + "}"
		case last:
			parts[i] = "{" + parts[i]
		default:
			parts[i] = "{" + parts[i] + "}"
		}
	}
	return parts
}

// Decoder turns response body reads into wire chunks. Documents that do not
// parse and chunks of unknown kinds are logged and dropped, so everything a
// Decoder returns is safe to Apply.
type Decoder interface {
	// Feed consumes one read.
	Feed(data []byte) []wire.Chunk
	// Flush returns whatever is left once the body is exhausted.
	Flush() []wire.Chunk
}

// NewDecoder returns the decoder for f.
func NewDecoder(f wire.Framing) Decoder {
	if f == wire.FramingConcat {
		return &ConcatDecoder{}
	}
	return &NDJSONDecoder{}
}

// NDJSONDecoder reads one document per line. A line split across reads is
// buffered until its newline arrives.
type NDJSONDecoder struct {
	buf []byte
}

func (d *NDJSONDecoder) Feed(data []byte) []wire.Chunk {
	d.buf = append(d.buf, data...)
	var out []wire.Chunk
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(d.buf[:i])
		d.buf = d.buf[i+1:]
		if len(line) == 0 {
			continue
		}
		if c, ok := decodeChunk(line); ok {
			out = append(out, c)
		}
	}
	return out
}

func (d *NDJSONDecoder) Flush() []wire.Chunk {
	line := bytes.TrimSpace(d.buf)
	d.buf = nil
	if len(line) == 0 {
		return nil
	}
	if c, ok := decodeChunk(line); ok {
		return []wire.Chunk{c}
	}
	return nil
}

// ConcatDecoder splits each read independently with SplitConcatenated. A
// document cut across two reads is lost.
type ConcatDecoder struct{}

func (ConcatDecoder) Feed(data []byte) []wire.Chunk {
	var out []wire.Chunk
	for _, doc := range SplitConcatenated(string(data)) {
		if strings.TrimSpace(doc) == "" {
			continue
		}
		if c, ok := decodeChunk([]byte(doc)); ok {
			out = append(out, c)
		}
	}
	return out
}

func (ConcatDecoder) Flush() []wire.Chunk { return nil }

func decodeChunk(doc []byte) (wire.Chunk, bool) {
	var c wire.Chunk
	if err := json.Unmarshal(doc, &c); err != nil {
		log.Debug().Err(err).Int("bytes", len(doc)).Msg("Dropping unparseable chunk")
		return wire.Chunk{}, false
	}
	if !c.Type.Valid() {
		log.Debug().Str("type", string(c.Type)).Msg("Dropping chunk of unknown kind")
		return wire.Chunk{}, false
	}
	return c, true
}
