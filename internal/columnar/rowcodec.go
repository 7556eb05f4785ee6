package columnar

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/model"
)

// EncodeField converts a logical, form-validated field value into the
// physical representation its Parquet column expects.
func EncodeField(t model.FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case model.FieldString, model.FieldMarkdown, model.FieldRowReference:
		return fmt.Sprintf("%v", v), nil
	case model.FieldNumber, model.FieldDouble:
		return toFloat64(v)
	case model.FieldFloat:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case model.FieldInteger:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return int32(n), nil
	case model.FieldLong:
		return toInt64(v)
	case model.FieldBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, ieerr.Validation("not a boolean: %v", v)
		}
		return b, nil
	case model.FieldDate:
		tm, err := toTime(v)
		if err != nil {
			return nil, err
		}
		days := tm.UTC().Truncate(24 * time.Hour).Unix() / 86400
		return int32(days), nil
	case model.FieldTime:
		tm, err := toTime(v)
		if err != nil {
			return nil, err
		}
		midnight := time.Date(tm.Year(), tm.Month(), tm.Day(), 0, 0, 0, 0, tm.Location())
		return tm.Sub(midnight).Microseconds(), nil
	case model.FieldTimestamp, model.FieldTimestampTZ:
		tm, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return tm.UnixMicro(), nil
	case model.FieldTimestampNS, model.FieldTimestampTZNS:
		tm, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return tm.UnixNano(), nil
	case model.FieldUUID:
		id, err := toUUID(v)
		if err != nil {
			return nil, err
		}
		b, _ := id.MarshalBinary()
		return base64.StdEncoding.EncodeToString(b), nil
	case model.FieldBinary:
		b, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		return base64.StdEncoding.EncodeToString(b), nil
	case model.FieldList:
		items, err := toStringList(v)
		if err != nil {
			return nil, err
		}
		js, _ := json.Marshal(items)
		return string(js), nil
	case model.FieldObjectList:
		js, err := json.Marshal(v)
		if err != nil {
			return nil, ieerr.Validation("invalid object_list value: %v", err)
		}
		return string(js), nil
	default:
		return nil, ieerr.Validation("unknown field type %q", t)
	}
}

// DecodeField is EncodeField's inverse, restoring the surface value
// (canonical UUID strings, base64:-prefixed binary strings, RFC3339
// timestamps, and so on).
func DecodeField(t model.FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case model.FieldString, model.FieldMarkdown, model.FieldRowReference:
		return fmt.Sprintf("%v", v), nil
	case model.FieldNumber, model.FieldDouble, model.FieldFloat:
		return toFloat64(v)
	case model.FieldInteger, model.FieldLong:
		return toInt64(v)
	case model.FieldBoolean:
		b, _ := v.(bool)
		return b, nil
	case model.FieldDate:
		days, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return time.Unix(days*86400, 0).UTC().Format("2006-01-02"), nil
	case model.FieldTime:
		micros, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		d := time.Duration(micros) * time.Microsecond
		return fmt.Sprintf("%02d:%02d:%02d.%06d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60, micros%1_000_000), nil
	case model.FieldTimestamp, model.FieldTimestampTZ:
		micros, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return time.UnixMicro(micros).UTC().Format(time.RFC3339Nano), nil
	case model.FieldTimestampNS, model.FieldTimestampTZNS:
		nanos, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return time.Unix(0, nanos).UTC().Format(time.RFC3339Nano), nil
	case model.FieldUUID:
		s, ok := v.(string)
		if !ok {
			return nil, ieerr.Validation("uuid column is not a string")
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, ieerr.Wrap(ieerr.KindValidation, err, "decode uuid column")
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return nil, ieerr.Wrap(ieerr.KindValidation, err, "decode uuid")
		}
		return id.String(), nil
	case model.FieldBinary:
		s, ok := v.(string)
		if !ok {
			return nil, ieerr.Validation("binary column is not a string")
		}
		if _, err := base64.StdEncoding.DecodeString(s); err != nil {
			return nil, ieerr.Wrap(ieerr.KindValidation, err, "decode binary column")
		}
		return "base64:" + s, nil
	case model.FieldList:
		s, ok := v.(string)
		if !ok {
			return nil, ieerr.Validation("list column is not a string")
		}
		var items []string
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil, ieerr.Wrap(ieerr.KindValidation, err, "decode list")
		}
		return items, nil
	case model.FieldObjectList:
		s, ok := v.(string)
		if !ok {
			return nil, ieerr.Validation("object_list column is not a string")
		}
		var items []map[string]any
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil, ieerr.Wrap(ieerr.KindValidation, err, "decode object_list")
		}
		return items, nil
	default:
		return nil, ieerr.Validation("unknown field type %q", t)
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, ieerr.Validation("not a number: %v", v)
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, ieerr.Validation("not an integer: %v", v)
	}
}

func toTime(v any) (time.Time, error) {
	switch tm := v.(type) {
	case time.Time:
		return tm, nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02", "15:04:05", "15:04:05.000000"} {
			if t, err := time.Parse(layout, tm); err == nil {
				return t, nil
			}
		}
		return time.Time{}, ieerr.Validation("cannot parse time value %q", tm)
	default:
		return time.Time{}, ieerr.Validation("not a time value: %v", v)
	}
}

func toUUID(v any) (uuid.UUID, error) {
	s, ok := v.(string)
	if !ok {
		return uuid.UUID{}, ieerr.Validation("not a uuid value: %v", v)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, ieerr.Wrap(ieerr.KindValidation, err, "invalid uuid %q", s)
	}
	return id, nil
}

func toBytes(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, ieerr.Validation("not a binary value: %v", v)
	}
	switch {
	case hasPrefix(s, "base64:"):
		return base64.StdEncoding.DecodeString(s[len("base64:"):])
	case hasPrefix(s, "hex:"):
		return decodeHex(s[len("hex:"):])
	case hasPrefix(s, "0x"):
		return decodeHex(s[2:])
	default:
		if b, err := base64.StdEncoding.DecodeString(s); err == nil {
			return b, nil
		}
		return []byte(s), nil
	}
}

func hasPrefix(s, p string) bool { return len(s) >= len(p) && s[:len(p)] == p }

func decodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, ieerr.Validation("odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		var b byte
		for j := 0; j < 2; j++ {
			c := s[i*2+j]
			b <<= 4
			switch {
			case c >= '0' && c <= '9':
				b |= c - '0'
			case c >= 'a' && c <= 'f':
				b |= c - 'a' + 10
			case c >= 'A' && c <= 'F':
				b |= c - 'A' + 10
			default:
				return nil, ieerr.Validation("invalid hex digit %q", c)
			}
		}
		out[i] = b
	}
	return out, nil
}

func toStringList(v any) ([]string, error) {
	switch l := v.(type) {
	case []string:
		return l, nil
	case []any:
		out := make([]string, len(l))
		for i, item := range l {
			out[i] = fmt.Sprintf("%v", item)
		}
		return out, nil
	default:
		return nil, ieerr.Validation("not a list value: %v", v)
	}
}
