package survey

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultQuestion    = "이재명 후보와 홍준표 후보 중 누구를 더 지지하시나요?"
	UnknownPhoneNumber = "unknown"
	DefaultRowIndex    = 1
)

// CallContext is the per-call input. It is never modified after parsing.
type CallContext struct {
	PhoneNumber string `json:"phone_number"`
	// RowIndex is 1-based; it is validated against the dataset only at commit time.
	RowIndex int    `json:"row_index"`
	Question string `json:"question"`
}

func DefaultCallContext() CallContext {
	return CallContext{
		PhoneNumber: UnknownPhoneNumber,
		RowIndex:    DefaultRowIndex,
		Question:    DefaultQuestion,
	}
}

// ParseMetadata decodes job metadata. Missing, null or wrongly typed fields fall back
// to defaults; only a document that is not a JSON object is an error.
func ParseMetadata(raw string) (CallContext, error) {
	cc := DefaultCallContext()
	if strings.TrimSpace(raw) == "" {
		return cc, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return cc, errors.Wrap(err, "parse job metadata")
	}
	for k, v := range fields {
		if strings.TrimSpace(string(v)) == "null" {
			delete(fields, k)
		}
	}

	if v, ok := fields["phone_number"]; ok {
		if s, ok := textField(v); ok && s != "" {
			cc.PhoneNumber = s
		} else {
			log.Warn().RawJSON("phone_number", v).Msg("unusable phone_number in metadata, using default")
		}
	}
	if v, ok := fields["row_index"]; ok {
		if n, ok := intField(v); ok {
			cc.RowIndex = n
		} else {
			log.Warn().RawJSON("row_index", v).Msg("unusable row_index in metadata, using default")
		}
	}
	if v, ok := fields["question"]; ok {
		if s, ok := textField(v); ok && strings.TrimSpace(s) != "" {
			cc.Question = s
		} else {
			log.Warn().RawJSON("question", v).Msg("unusable question in metadata, using default")
		}
	}
	return cc, nil
}

// textField accepts JSON strings and numbers, returning their text.
func textField(v json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// intField accepts integral JSON numbers and numeric strings.
func intField(v json.RawMessage) (int, bool) {
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return 0, false
		}
		return int(f), true
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
