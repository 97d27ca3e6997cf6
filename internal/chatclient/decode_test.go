package chatclient_test

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipeassist/recipe-assistant/internal/chatclient"
	"github.com/recipeassist/recipe-assistant/internal/wire"
)

func TestSplitConcatenated(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"single", `{"a":1}`, []string{`{"a":1}`}},
		{"two", `{"a":1}{"b":2}`, []string{`{"a":1}`, `{"b":2}`}},
		{"three", `{"a":1}{"b":2}{"c":3}`, []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}},
		{"nested object", `{"a":{"x":1}}{"b":2}`, []string{`{"a":{"x":1}}`, `{"b":2}`}},
		{"empty", ``, []string{``}},
		{
			name: "brace pair inside a string is split too",
			raw:  `{"text":"}{"}`,
			want: []string{`{"text":"}`, `{"}`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chatclient.SplitConcatenated(tt.raw))
		})
	}
}

func TestConcatDecoder_DropsBadDocuments(t *testing.T) {
	var d chatclient.ConcatDecoder
	got := d.Feed([]byte(`{"type":"text-delta","text":"a"}{"type":"mystery"}{"type":"text-delta","text":"}{"}{"type":"tool-output","workflowStepId":"save-recipes"}`))

	assert.Equal(t, []wire.Chunk{
		wire.TextDelta("a"),
		wire.ToolOutput("save-recipes"),
	}, got)
	assert.Empty(t, d.Flush())
}

func TestNDJSONDecoder_BuffersAcrossReads(t *testing.T) {
	d := &chatclient.NDJSONDecoder{}
	assert.Empty(t, d.Feed([]byte(`{"type":"text-delta","te`)))
	assert.Equal(t, []wire.Chunk{wire.TextDelta("hi")}, d.Feed([]byte("xt\":\"hi\"}\n{\"type\":\"tool-res")))
	assert.Empty(t, d.Feed([]byte(`ult","toolId":"get-user-recipes","recipeIds":["r1"]}`)))
	assert.Equal(t, []wire.Chunk{wire.ToolResult("get-user-recipes", []string{"r1"})}, d.Flush())
}

func TestNDJSONDecoder_SkipsBadLines(t *testing.T) {
	d := &chatclient.NDJSONDecoder{}
	got := d.Feed([]byte("not json\n\n{\"type\":\"finish\"}\n{\"type\":\"text-delta\",\"text\":\"}{\"}\n"))
	assert.Equal(t, []wire.Chunk{wire.TextDelta("}{")}, got)
}

// ─── Properties ──────────────────────────────────────────────

// genChunks produces wire chunks whose strings never contain "}{".
func genChunks() gopter.Gen {
	word := gen.AlphaString()
	chunk := gen.IntRange(0, 4).FlatMap(func(v any) gopter.Gen {
		switch v.(int) {
		case 0:
			return word.Map(func(s string) wire.Chunk { return wire.TextDelta(s) })
		case 1:
			return word.Map(func(s string) wire.Chunk { return wire.ToolCallStart("", "t"+s) })
		case 2:
			return word.Map(func(s string) wire.Chunk { return wire.ToolOutput("step" + s) })
		case 3:
			return word.Map(func(s string) wire.Chunk { return wire.WorkflowResult("w" + s) })
		default:
			return gen.SliceOf(gen.Identifier()).Map(func(ids []string) wire.Chunk { return wire.ToolResult("tool", ids) })
		}
	}, reflect.TypeOf(wire.Chunk{}))
	return gen.SliceOf(chunk)
}

func encodeAll(t *testing.T, f wire.Framing, chunks []wire.Chunk) []byte {
	var buf bytes.Buffer
	for _, c := range chunks {
		require.NoError(t, wire.Encode(&buf, f, c))
	}
	return buf.Bytes()
}

func TestProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("split recovers one document per written chunk", prop.ForAll(
		func(chunks []wire.Chunk) bool {
			if len(chunks) == 0 {
				return true
			}
			docs := chatclient.SplitConcatenated(string(encodeAll(t, wire.FramingConcat, chunks)))
			if len(docs) != len(chunks) {
				return false
			}
			for i, doc := range docs {
				want, _ := json.Marshal(chunks[i])
				if doc != string(want) {
					return false
				}
			}
			return true
		},
		genChunks(),
	))

	properties.Property("ndjson decoding survives arbitrary read boundaries", prop.ForAll(
		func(chunks []wire.Chunk, cuts []int) bool {
			data := encodeAll(t, wire.FramingNDJSON, chunks)
			d := &chatclient.NDJSONDecoder{}
			var got []wire.Chunk
			prev := 0
			for _, c := range cuts {
				if c > len(data) {
					c = len(data)
				}
				if c < prev {
					continue
				}
				got = append(got, d.Feed(data[prev:c])...)
				prev = c
			}
			got = append(got, d.Feed(data[prev:])...)
			got = append(got, d.Flush()...)
			if len(got) != len(chunks) {
				return false
			}
			for i := range got {
				a, _ := json.Marshal(got[i])
				b, _ := json.Marshal(chunks[i])
				if !bytes.Equal(a, b) {
					return false
				}
			}
			return true
		},
		genChunks(),
		gen.SliceOf(gen.IntRange(0, 400)),
	))

	properties.Property("content only grows and equals the concatenated deltas", prop.ForAll(
		func(texts []string) bool {
			var m chatclient.Message
			var want strings.Builder
			prevLen := 0
			for _, s := range texts {
				m.Apply(wire.TextDelta(s))
				want.WriteString(s)
				if len(m.Content) < prevLen {
					return false
				}
				prevLen = len(m.Content)
			}
			return m.Content == want.String()
		},
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t)
}
