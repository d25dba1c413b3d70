package gge

import (
	"strconv"

	crerr "github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
)

const upperHex = "0123456789ABCDEF"

type Param struct {
	Key   string
	Value any
}

// Params keeps insertion order; the remote rejects requests whose keys are
// reordered for some commands.
type Params []Param

func (p Params) With(key string, value any) Params {
	return append(p, Param{Key: key, Value: value})
}

// EncodeParams renders params in the remote's bracketed key:value grammar,
// e.g. {"LT":6,"SV":"1"}, and percent-escapes every byte outside
// [A-Za-z0-9{}:,-_.] so `"` travels as %22.
func EncodeParams(params Params) (string, error) {
	raw := bytebufferpool.Get()
	defer bytebufferpool.Put(raw)

	_ = raw.WriteByte('{')
	for i, p := range params {
		if !validKey(p.Key) {
			return "", crerr.Newf("invalid parameter key %q", p.Key)
		}
		if i > 0 {
			_ = raw.WriteByte(',')
		}
		_ = raw.WriteByte('"')
		_, _ = raw.WriteString(p.Key)
		_, _ = raw.WriteString(`":`)
		if err := appendValue(raw, p.Value); err != nil {
			return "", crerr.Wrapf(err, "parameter %s", p.Key)
		}
	}
	_ = raw.WriteByte('}')

	out := bytebufferpool.Get()
	defer bytebufferpool.Put(out)
	for _, b := range raw.B {
		if unreserved(b) {
			_ = out.WriteByte(b)
			continue
		}
		_ = out.WriteByte('%')
		_ = out.WriteByte(upperHex[b>>4])
		_ = out.WriteByte(upperHex[b&0x0f])
	}

	return out.String(), nil
}

func appendValue(buf *bytebufferpool.ByteBuffer, value any) error {
	switch v := value.(type) {
	case int:
		buf.B = strconv.AppendInt(buf.B, int64(v), 10)
	case int32:
		buf.B = strconv.AppendInt(buf.B, int64(v), 10)
	case int64:
		buf.B = strconv.AppendInt(buf.B, v, 10)
	case bool:
		if v {
			buf.B = append(buf.B, '1')
		} else {
			buf.B = append(buf.B, '0')
		}
	case string:
		_ = buf.WriteByte('"')
		for i := 0; i < len(v); i++ {
			if v[i] == '"' || v[i] == '\\' {
				_ = buf.WriteByte('\\')
			}
			_ = buf.WriteByte(v[i])
		}
		_ = buf.WriteByte('"')
	default:
		return crerr.Newf("unsupported value type %T", value)
	}
	return nil
}

func validKey(key string) bool {
	if key == "" {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

func unreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '{' || c == '}' || c == ':' || c == ',' || c == '-' || c == '_' || c == '.':
		return true
	default:
		return false
	}
}
