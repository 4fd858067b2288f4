package channel

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// ============================================================================
//                              帧格式
// ============================================================================

// 字段以 0 结尾，消息以 EOM 结尾。字段中的 0x03 写作 0x03 0x00。
const (
	markerEsc = 0x03
	markerEOM = 0x01
	markerEOS = 0x02
)

var (
	eomBytes = []byte{markerEsc, markerEOM}
	eosBytes = []byte{markerEsc, markerEOS}
)

// 消息类型
const (
	KindCommand  byte = 'C'
	KindResult   byte = 'R'
	KindProgress byte = 'P'
	KindEvent    byte = 'E'
	KindUnknown  byte = 'N'
	KindFlow     byte = 'F'
)

// Message 一条协议消息
//
//	C token service name args...
//	R token args...
//	P token args...
//	E service name args...
//	N token
type Message struct {
	Kind    byte
	Token   string
	Service string
	Name    string
	Args    []json.RawMessage
}

// Encode 把消息编码为一帧
func Encode(m *Message) []byte {
	buf := make([]byte, 0, 64)
	buf = appendField(buf, []byte{m.Kind})
	switch m.Kind {
	case KindCommand:
		buf = appendField(buf, []byte(m.Token))
		buf = appendField(buf, []byte(m.Service))
		buf = appendField(buf, []byte(m.Name))
	case KindResult, KindProgress, KindUnknown:
		buf = appendField(buf, []byte(m.Token))
	case KindEvent:
		buf = appendField(buf, []byte(m.Service))
		buf = appendField(buf, []byte(m.Name))
	}
	for _, a := range m.Args {
		buf = appendField(buf, a)
	}
	return append(buf, eomBytes...)
}

func appendField(buf, field []byte) []byte {
	for _, b := range field {
		if b == markerEsc {
			buf = append(buf, markerEsc, 0)
			continue
		}
		buf = append(buf, b)
	}
	return append(buf, 0)
}

// EncodeArgs 把参数逐个编码为 JSON
func EncodeArgs(args ...any) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(args))
	for i, a := range args {
		if raw, ok := a.(json.RawMessage); ok {
			out[i] = raw
			continue
		}
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encode argument %d: %w", i, err)
		}
		out[i] = data
	}
	return out, nil
}

// ============================================================================
//                              Decoder
// ============================================================================

// DefaultMaxMessageSize 单条消息在线路上的默认上限
const DefaultMaxMessageSize = 4 << 20

// Decoder 从字节流读取消息
type Decoder struct {
	r    *bufio.Reader
	size int
	max  int
}

// NewDecoder 创建解码器，单条消息上限为 DefaultMaxMessageSize
func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderSize(r, DefaultMaxMessageSize)
}

// NewDecoderSize 创建解码器，单条消息超过 max 字节时 Decode 返回 ErrProtocol。
// max <= 0 时使用 DefaultMaxMessageSize。
func NewDecoderSize(r io.Reader, max int) *Decoder {
	if max <= 0 {
		max = DefaultMaxMessageSize
	}
	return &Decoder{r: bufio.NewReader(r), max: max}
}

func (d *Decoder) readByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return b, err
	}
	d.size++
	if d.size > d.max {
		return b, fmt.Errorf("%w: message exceeds %d bytes", ErrProtocol, d.max)
	}
	return b, nil
}

// Buffered 返回已读入但尚未解码的字节
func (d *Decoder) Buffered() []byte {
	n := d.r.Buffered()
	if n == 0 {
		return nil
	}
	b, _ := d.r.Peek(n)
	return b
}

// Reader 返回底层带缓冲的读取端，用于重定向后转发剩余字节
func (d *Decoder) Reader() io.Reader {
	return d.r
}

// Size 上一条消息在线路上的字节数
func (d *Decoder) Size() int {
	return d.size
}

// Decode 读取下一条消息
//
// 对端发送 EOS 时返回 io.EOF；消息超过上限时返回 ErrProtocol，
// 此后解码器不可再用。
func (d *Decoder) Decode() (*Message, error) {
	var (
		fields [][]byte
		cur    []byte
	)
	d.size = 0
	for {
		b, err := d.readByte()
		if err != nil {
			if err == io.EOF && (len(fields) > 0 || len(cur) > 0) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		switch b {
		case 0:
			fields = append(fields, cur)
			cur = nil
			continue
		case markerEsc:
		default:
			cur = append(cur, b)
			continue
		}

		m, err := d.readByte()
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		switch m {
		case 0:
			cur = append(cur, markerEsc)
		case markerEOM:
			if len(cur) > 0 {
				fields = append(fields, cur)
			}
			return parseMessage(fields)
		case markerEOS:
			return nil, io.EOF
		default:
			return nil, fmt.Errorf("%w: bad escape 0x%02x", ErrProtocol, m)
		}
	}
}

func parseMessage(fields [][]byte) (*Message, error) {
	if len(fields) == 0 || len(fields[0]) != 1 {
		return nil, fmt.Errorf("%w: missing message kind", ErrProtocol)
	}
	m := &Message{Kind: fields[0][0]}
	rest := fields[1:]

	need := 0
	switch m.Kind {
	case KindCommand:
		need = 3
	case KindResult, KindProgress, KindUnknown, KindFlow:
		need = 1
	case KindEvent:
		need = 2
	default:
		return nil, fmt.Errorf("%w: unknown message kind %q", ErrProtocol, m.Kind)
	}
	if len(rest) < need {
		return nil, fmt.Errorf("%w: %c message has %d fields", ErrProtocol, m.Kind, len(rest))
	}

	switch m.Kind {
	case KindCommand:
		m.Token, m.Service, m.Name = string(rest[0]), string(rest[1]), string(rest[2])
	case KindResult, KindProgress, KindUnknown, KindFlow:
		m.Token = string(rest[0])
	case KindEvent:
		m.Service, m.Name = string(rest[0]), string(rest[1])
	}
	for _, f := range rest[need:] {
		m.Args = append(m.Args, json.RawMessage(f))
	}
	return m, nil
}
