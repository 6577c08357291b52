package serializer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ValentinKolb/marines/lib/marine"
	"github.com/ValentinKolb/marines/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and size
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: kind (1 byte), flags (1 byte), then the fields announced by the
// flags. Strings are prefixed with their length as uint32, numbers are big
// endian, floats are IEEE 754 bits.
type binarySerializerImpl struct {
}

// Bit flags of the request header
const (
	hasUser     byte = 1 << 0
	hasPassHash byte = 1 << 1
	hasCommand  byte = 1 << 2
)

// Bit flags of the command header
const (
	hasKey      byte = 1 << 0
	hasID       byte = 1 << 1
	hasMarine   byte = 1 << 2
	hasCategory byte = 1 << 3
)

// Bit flags of a marine
const (
	hasChapter      byte = 1 << 0
	hasChapterWorld byte = 1 << 1
	hasCreationDate byte = 1 << 2
)

var errShortData = errors.New("data too short")

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(req common.Request) ([]byte, error) {
	out := make([]byte, 2, 64)
	out[0] = byte(req.Kind)

	var flags byte
	if req.User != "" {
		flags |= hasUser
		out = appendString(out, req.User)
	}
	if req.PassHash != "" {
		flags |= hasPassHash
		out = appendString(out, req.PassHash)
	}
	if req.Command != nil {
		flags |= hasCommand
		out = appendCommand(out, req.Command)
	}
	out[1] = flags
	return out, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, req *common.Request) error {
	*req = common.Request{}
	r := &reader{data: data}

	req.Kind = common.RequestKind(r.readByte())
	flags := r.readByte()
	if flags&hasUser != 0 {
		req.User = r.readString()
	}
	if flags&hasPassHash != 0 {
		req.PassHash = r.readString()
	}
	if flags&hasCommand != 0 {
		req.Command = r.readCommand()
	}

	if r.err != nil {
		return fmt.Errorf("binary request at offset %d: %w", r.pos, r.err)
	}
	if r.pos != len(data) {
		return fmt.Errorf("binary request: %d trailing bytes", len(data)-r.pos)
	}
	return nil
}

// --------------------------------------------------------------------------
// Encoding Helper
// --------------------------------------------------------------------------

func appendString(out []byte, s string) []byte {
	out = binary.BigEndian.AppendUint32(out, uint32(len(s)))
	return append(out, s...)
}

func appendInt(out []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(out, uint64(v))
}

func appendFloat(out []byte, f float64) []byte {
	return binary.BigEndian.AppendUint64(out, math.Float64bits(f))
}

func appendCommand(out []byte, c *common.Command) []byte {
	out = append(out, byte(c.Type))
	flagPos := len(out)
	out = append(out, 0)

	var flags byte
	if c.Key != 0 {
		flags |= hasKey
		out = appendInt(out, c.Key)
	}
	if c.ID != 0 {
		flags |= hasID
		out = appendInt(out, c.ID)
	}
	if c.Marine != nil {
		flags |= hasMarine
		out = appendMarine(out, c.Marine)
	}
	if c.Category != marine.CategoryNone {
		flags |= hasCategory
		out = append(out, byte(c.Category))
	}
	out[flagPos] = flags
	return out
}

func appendMarine(out []byte, m *marine.Marine) []byte {
	var flags byte
	if m.Chapter != nil {
		flags |= hasChapter
		if m.Chapter.World != "" {
			flags |= hasChapterWorld
		}
	}
	if !m.CreationDate.IsZero() {
		flags |= hasCreationDate
	}
	out = append(out, flags)

	out = appendInt(out, m.Key)
	out = appendInt(out, m.ID)
	out = appendString(out, m.Name)
	out = appendFloat(out, m.Coordinates.X)
	out = appendFloat(out, m.Coordinates.Y)
	if flags&hasCreationDate != 0 {
		out = appendInt(out, m.CreationDate.Unix())
	}
	out = appendFloat(out, m.Health)
	out = append(out, byte(m.Category), byte(m.WeaponType), byte(m.MeleeWeapon))
	if m.Chapter != nil {
		out = appendString(out, m.Chapter.Name)
		if flags&hasChapterWorld != 0 {
			out = appendString(out, m.Chapter.World)
		}
	}
	return appendString(out, m.Owner)
}

// --------------------------------------------------------------------------
// Decoding Helper
// --------------------------------------------------------------------------

// reader consumes data front to back and remembers the first error
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = errShortData
		return nil
	}
	p := r.data[r.pos : r.pos+n]
	r.pos += n
	return p
}

func (r *reader) readByte() byte {
	if p := r.take(1); p != nil {
		return p[0]
	}
	return 0
}

func (r *reader) readUint64() uint64 {
	if p := r.take(8); p != nil {
		return binary.BigEndian.Uint64(p)
	}
	return 0
}

func (r *reader) readInt() int64 {
	return int64(r.readUint64())
}

func (r *reader) readFloat() float64 {
	return math.Float64frombits(r.readUint64())
}

func (r *reader) readString() string {
	p := r.take(4)
	if p == nil {
		return ""
	}
	n := binary.BigEndian.Uint32(p)
	if uint64(n) > uint64(len(r.data)-r.pos) {
		r.err = errShortData
		return ""
	}
	return string(r.take(int(n)))
}

func (r *reader) readCommand() *common.Command {
	c := &common.Command{Type: common.CommandType(r.readByte())}
	flags := r.readByte()
	if flags&hasKey != 0 {
		c.Key = r.readInt()
	}
	if flags&hasID != 0 {
		c.ID = r.readInt()
	}
	if flags&hasMarine != 0 {
		c.Marine = r.readMarine()
	}
	if flags&hasCategory != 0 {
		c.Category = marine.Category(r.readByte())
	}
	return c
}

func (r *reader) readMarine() *marine.Marine {
	flags := r.readByte()
	m := &marine.Marine{}
	m.Key = r.readInt()
	m.ID = r.readInt()
	m.Name = r.readString()
	m.Coordinates.X = r.readFloat()
	m.Coordinates.Y = r.readFloat()
	if flags&hasCreationDate != 0 {
		m.CreationDate = time.Unix(r.readInt(), 0).UTC()
	}
	m.Health = r.readFloat()
	m.Category = marine.Category(r.readByte())
	m.WeaponType = marine.WeaponType(r.readByte())
	m.MeleeWeapon = marine.MeleeWeapon(r.readByte())
	if flags&hasChapter != 0 {
		m.Chapter = &marine.Chapter{Name: r.readString()}
		if flags&hasChapterWorld != 0 {
			m.Chapter.World = r.readString()
		}
	}
	m.Owner = r.readString()
	return m
}
