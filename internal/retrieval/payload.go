package retrieval

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/atikulmunna/sagrag/internal/model"
)

// decodePayload maps a loosely typed stored document onto model.Payload.
// Missing or mistyped fields are left empty.
func decodePayload(raw map[string]any) model.Payload {
	if raw == nil {
		return model.Payload{}
	}
	return model.Payload{
		Text:        stringField(raw, "text"),
		Source:      stringField(raw, "source"),
		Timestamp:   timeField(raw, "timestamp"),
		SourceType:  stringField(raw, "source_type"),
		Domain:      stringField(raw, "domain"),
		OffsetStart: intField(raw, "offset_start"),
		OffsetEnd:   intField(raw, "offset_end"),
	}
}

func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func intField(raw map[string]any, key string) *int {
	var n int
	switch v := raw[key].(type) {
	case float64:
		n = int(v)
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return nil
		}
		n = int(i)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil
		}
		n = i
	default:
		return nil
	}
	return &n
}

// timeField accepts epoch seconds or an RFC 3339 / date string
func timeField(raw map[string]any, key string) *time.Time {
	var t time.Time
	switch v := raw[key].(type) {
	case float64:
		sec, frac := math.Modf(v)
		t = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil
		}
		t = time.Unix(int64(f), 0).UTC()
	case string:
		s := strings.TrimSpace(v)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			t = time.Unix(int64(f), 0).UTC()
			break
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			parsed, err = time.Parse("2006-01-02", s)
			if err != nil {
				return nil
			}
		}
		t = parsed
	default:
		return nil
	}
	return &t
}

// pointID renders a Qdrant point id, which may be a number or a string
func pointID(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
