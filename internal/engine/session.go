package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Session - изменяемое состояние одного прохождения.
type Session struct {
	ID           string           `json:"id" db:"id"`
	NodeID       string           `json:"current_node_id" db:"current_node_id"`
	Variables    map[string]Value `json:"variables" db:"-"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	LastActiveAt time.Time        `json:"last_active_at" db:"last_active_at"`
}

// Touch отмечает активность игрока.
func (s *Session) Touch(now time.Time) {
	s.LastActiveAt = now
}

// IsExpired - сессия истекает после timeout без активности.
func (s *Session) IsExpired(timeout time.Duration, now time.Time) bool {
	return now.Sub(s.LastActiveAt) >= timeout
}

// MarshalJSON кодирует значение его естественным JSON-типом:
// bool, число или строка в синтаксисе сценария ("Gold: {gold}").
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindBool:
		return json.Marshal(v.Bool)
	case KindInt:
		return json.Marshal(v.Int)
	case KindString:
		return json.Marshal(v.Str.Source())
	default:
		return nil, fmt.Errorf("cannot marshal value of kind %s", v.Kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}

	switch data[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		fs, err := ParseFormatString(s)
		if err != nil {
			return fmt.Errorf("invalid string value %q: %w", s, err)
		}
		*v = StringValue(fs)
	default:
		i, err := strconv.ParseInt(string(data), 10, 32)
		if err != nil {
			return fmt.Errorf("invalid int value %s: %w", data, err)
		}
		*v = IntValue(int32(i))
	}
	return nil
}
