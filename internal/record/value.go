package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/skyline/internal/model"
)

// encodeValue はAPIから受け取った値を列の種類に応じたDB表現に変換する。
// 配列・オブジェクトはどの列でもJSON文字列として保存する。
// nullは真偽値の列では0、それ以外ではSQLのNULLになる。
func encodeValue(col model.Column, v any) (any, error) {
	if v == nil {
		if col.Kind == model.KindBool {
			return int64(0), nil
		}
		return nil, nil
	}

	switch val := v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", col.Name, err)
		}
		return string(b), nil
	}

	switch col.Kind {
	case model.KindBool:
		return encodeBool(col, v)
	case model.KindFloat:
		f, ok, err := toFloat(v)
		if err != nil || !ok {
			return nil, invalidValue(col, v)
		}
		return f, nil
	case model.KindInt:
		f, ok, err := toFloat(v)
		if err != nil || !ok {
			return nil, invalidValue(col, v)
		}
		return int64(math.Trunc(f)), nil
	case model.KindTimestamp:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, invalidValue(col, v)
		}
		if s == "" {
			return nil, nil
		}
		t, err := parseTimestamp(s)
		if err != nil {
			return nil, invalidValue(col, v)
		}
		return t, nil
	case model.KindJSON:
		// 文字列で渡された場合はエンコード済みとみなす
		if s, ok := v.(string); ok {
			return s, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, invalidValue(col, v)
		}
		return string(b), nil
	default:
		return encodeText(v), nil
	}
}

func encodeBool(col model.Column, v any) (any, error) {
	switch val := v.(type) {
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "true", "yes", "on":
			return int64(1), nil
		case "", "0", "false", "no", "off":
			return int64(0), nil
		}
		return nil, invalidValue(col, v)
	}

	f, ok, err := toFloat(v)
	if err != nil || !ok {
		return nil, invalidValue(col, v)
	}
	if f != 0 {
		return int64(1), nil
	}
	return int64(0), nil
}

func encodeText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// toFloat は数値または数値文字列をfloat64に変換する。
// 空文字列はok=falseで返す。
func toFloat(v any) (float64, bool, error) {
	switch val := v.(type) {
	case float64:
		return val, true, nil
	case float32:
		return float64(val), true, nil
	case int:
		return float64(val), true, nil
	case int64:
		return float64(val), true, nil
	case json.Number:
		f, err := val.Float64()
		return f, err == nil, err
	case bool:
		if val {
			return 1, true, nil
		}
		return 0, true, nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, err
		}
		return f, true, nil
	case []byte:
		return toFloat(string(val))
	}
	return 0, false, fmt.Errorf("unsupported numeric value %T", v)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func invalidValue(col model.Column, v any) error {
	return model.NewValidationError(fmt.Sprintf("%s に不正な値が指定されました: %v", col.Name, v))
}

// decodeValue はDBドライバが返した値をAPIで返す型に変換する。
// JSON列のデコードに失敗した場合は元の文字列を返す。
func decodeValue(col model.Column, v any) any {
	if v == nil {
		return nil
	}

	switch col.Kind {
	case model.KindJSON:
		s := asString(v)
		if s == "" {
			return s
		}
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return s
		}
		return decoded
	case model.KindBool:
		f, ok, err := toFloat(v)
		if err != nil || !ok {
			return false
		}
		return f != 0
	case model.KindFloat:
		f, ok, err := toFloat(v)
		if err != nil || !ok {
			return nil
		}
		return f
	case model.KindInt:
		f, ok, err := toFloat(v)
		if err != nil || !ok {
			return nil
		}
		return int64(f)
	case model.KindTimestamp:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(time.RFC3339)
		}
		return asString(v)
	default:
		return asString(v)
	}
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
