package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDropsFieldsForOtherKinds(t *testing.T) {
	m := New(KindHuman, "hi", "fn", "call")
	assert.Equal(t, Message{Kind: KindHuman, Content: "hi"}, m)

	tool := New(KindTool, "out", "fn", "call")
	assert.Empty(t, tool.Name)
	assert.Equal(t, "call", tool.ToolCallID)

	fn := New(KindFunction, "out", "fn", "call")
	assert.Equal(t, "fn", fn.Name)
	assert.Empty(t, fn.ToolCallID)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Message{
		System("be brief"),
		Human("Hello!"),
		Assistant("Hi there."),
		Tool("42", "call_9"),
		Function("{}", "lookup"),
		Human(""),
	}
	for _, in := range cases {
		t.Run(in.Kind.String(), func(t *testing.T) {
			rec, err := Encode("s1", in)
			require.NoError(t, err)
			assert.Equal(t, "s1", rec.SessionID)

			out, err := Decode(rec)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestDecodeAppliesFallbacks(t *testing.T) {
	tool, err := Decode(Record{Type: TagTool, Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, FallbackToolCallID, tool.ToolCallID)

	fn, err := Decode(Record{Type: TagFunction, Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, FallbackFunctionName, fn.Name)

	// Missing optional fields are stored as NULL and come back as the fallback.
	rec, err := Encode("s1", Tool("x", ""))
	require.NoError(t, err)
	assert.Nil(t, rec.ToolCallID)
	back, err := Decode(rec)
	require.NoError(t, err)
	assert.Equal(t, FallbackToolCallID, back.ToolCallID)
}

func TestDecodeIgnoresForeignOptionalFields(t *testing.T) {
	name := "stray"
	m, err := Decode(Record{Type: TagHuman, Content: "x", Name: &name})
	require.NoError(t, err)
	assert.Empty(t, m.Name)
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode(Record{Type: "bogus", Content: "x"})
	require.ErrorIs(t, err, ErrUnknownKind)
	assert.Contains(t, err.Error(), "bogus")
}

func TestEncodeRejectsZeroKind(t *testing.T) {
	_, err := Encode("s1", Message{Content: "x"})
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestAssistantStoredAsAI(t *testing.T) {
	rec, err := Encode("s1", Assistant("ok"))
	require.NoError(t, err)
	assert.Equal(t, "ai", rec.Type)
	assert.Equal(t, "assistant", KindAssistant.String())
	assert.Equal(t, "user", Human("x").Role())
}

func TestKindJSON(t *testing.T) {
	b, err := json.Marshal(Assistant("ok"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"assistant","content":"ok"}`, string(b))

	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"tool","content":"r","tool_call_id":"c1"}`), &m))
	assert.Equal(t, Tool("r", "c1"), m)

	err = json.Unmarshal([]byte(`{"kind":"bogus"}`), &m)
	assert.ErrorIs(t, err, ErrUnknownKind)
}
