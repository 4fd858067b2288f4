package channel

import (
	"bytes"
	"encoding/json"
	"io"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncode_Layout(t *testing.T) {
	frame := Encode(&Message{
		Kind:    KindCommand,
		Token:   "1",
		Service: "Locator",
		Name:    "redirect",
		Args:    []json.RawMessage{json.RawMessage(`"p1"`)},
	})
	want := append([]byte("C\x001\x00Locator\x00redirect\x00\"p1\"\x00"), 0x03, 0x01)
	assert.Equal(t, want, frame)
}

func TestDecode_Kinds(t *testing.T) {
	var buf bytes.Buffer
	msgs := []*Message{
		{Kind: KindCommand, Token: "7", Service: "Echo", Name: "echo", Args: []json.RawMessage{json.RawMessage(`{"a":1}`)}},
		{Kind: KindResult, Token: "7", Args: []json.RawMessage{json.RawMessage(`null`), json.RawMessage(`"x"`)}},
		{Kind: KindEvent, Service: "Locator", Name: "Hello", Args: []json.RawMessage{json.RawMessage(`["Locator"]`)}},
		{Kind: KindUnknown, Token: "8"},
	}
	for _, m := range msgs {
		buf.Write(Encode(m))
	}
	buf.Write(eosBytes)

	dec := NewDecoder(&buf)
	for _, want := range msgs {
		got, err := dec.Decode()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecode_Escape(t *testing.T) {
	m := &Message{Kind: KindEvent, Service: "S", Name: "n", Args: []json.RawMessage{{'"', 0x03, '"'}}}
	frame := Encode(m)
	assert.True(t, bytes.Contains(frame, []byte{0x03, 0x00}))

	got, err := NewDecoder(bytes.NewReader(frame)).Decode()
	require.NoError(t, err)
	assert.Equal(t, m.Args, got.Args)
}

func TestDecode_Errors(t *testing.T) {
	t.Run("非法转义", func(t *testing.T) {
		_, err := NewDecoder(bytes.NewReader([]byte{'E', 0, 0x03, 0x09})).Decode()
		assert.ErrorIs(t, err, ErrProtocol)
	})

	t.Run("未知类型", func(t *testing.T) {
		_, err := NewDecoder(bytes.NewReader([]byte{'X', 0, 0x03, 0x01})).Decode()
		assert.ErrorIs(t, err, ErrProtocol)
	})

	t.Run("字段不足", func(t *testing.T) {
		_, err := NewDecoder(bytes.NewReader([]byte{'C', 0, '1', 0, 0x03, 0x01})).Decode()
		assert.ErrorIs(t, err, ErrProtocol)
	})

	t.Run("截断", func(t *testing.T) {
		_, err := NewDecoder(bytes.NewReader([]byte{'R', 0, '1'})).Decode()
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestDecode_MaxMessageSize(t *testing.T) {
	frame := Encode(&Message{Kind: KindResult, Token: "1", Args: []json.RawMessage{json.RawMessage(`"abcdef"`)}})

	t.Run("恰好等于上限", func(t *testing.T) {
		dec := NewDecoderSize(bytes.NewReader(append(slices.Clone(frame), frame...)), len(frame))
		for range 2 {
			_, err := dec.Decode()
			require.NoError(t, err)
			assert.Equal(t, len(frame), dec.Size())
		}
	})

	t.Run("超过上限", func(t *testing.T) {
		_, err := NewDecoderSize(bytes.NewReader(frame), len(frame)-1).Decode()
		assert.ErrorIs(t, err, ErrProtocol)
	})

	t.Run("无消息结束标记", func(t *testing.T) {
		stream := bytes.Repeat([]byte{'a'}, DefaultMaxMessageSize+16)
		_, err := NewDecoder(bytes.NewReader(stream)).Decode()
		assert.ErrorIs(t, err, ErrProtocol)
	})

	t.Run("非正数取默认值", func(t *testing.T) {
		dec := NewDecoderSize(bytes.NewReader(frame), 0)
		assert.Equal(t, DefaultMaxMessageSize, dec.max)
	})
}

func TestCodec_RoundTrip(t *testing.T) {
	field := rapid.SliceOf(rapid.ByteRange(1, 255))
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 4).Draw(t, "n")
		args := make([]json.RawMessage, n)
		for i := range args {
			args[i] = field.Draw(t, "arg")
		}
		m := &Message{
			Kind:    KindCommand,
			Token:   rapid.StringMatching(`[0-9]{1,6}`).Draw(t, "token"),
			Service: rapid.StringMatching(`[A-Za-z]{1,8}`).Draw(t, "service"),
			Name:    rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "name"),
			Args:    args,
		}

		got, err := NewDecoder(bytes.NewReader(Encode(m))).Decode()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Token != m.Token || got.Service != m.Service || got.Name != m.Name {
			t.Fatalf("header mismatch: %+v != %+v", got, m)
		}
		if len(got.Args) != len(m.Args) {
			t.Fatalf("args: %d != %d", len(got.Args), len(m.Args))
		}
		for i := range args {
			if !bytes.Equal(got.Args[i], m.Args[i]) {
				t.Fatalf("arg %d: %q != %q", i, got.Args[i], m.Args[i])
			}
		}
	})
}

func TestParseError(t *testing.T) {
	assert.NoError(t, ParseError(nil))
	assert.NoError(t, ParseError(json.RawMessage(`null`)))

	err := ParseError(json.RawMessage(`{"Code":12,"Format":"unknown peer"}`))
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, CodeUnknownPeer, re.Code)
	assert.Equal(t, "unknown peer", err.Error())

	assert.EqualError(t, ParseError(json.RawMessage(`"boom"`)), "boom")
	assert.ErrorIs(t, ParseError(json.RawMessage(`[1]`)), ErrProtocol)
}
