package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration 配置文件中的时长
//
// JSON 中可写成 "250ms"、"1s" 这样的字符串，也可写成毫秒整数：
//
//	{"probe": {"interval": "250ms"}}
//	{"probe": {"interval": 250}}
//
// 负值被拒绝。
type Duration time.Duration

func parseDuration(s string) (Duration, error) {
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return Duration(v), nil
}

// UnmarshalJSON 实现 json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := parseDuration(s)
		if err != nil {
			return err
		}
		*d = v
		return nil
	}

	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("duration must be a string like \"250ms\" or integer milliseconds: %s", data)
	}
	if ms < 0 {
		return fmt.Errorf("negative duration %dms", ms)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// MarshalJSON 总是输出字符串形式
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Duration 返回 time.Duration
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Set 实现 flag.Value，格式与 JSON 字符串相同
func (d *Duration) Set(s string) error {
	v, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}
