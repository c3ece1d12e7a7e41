package service

import (
	"fmt"
	"strconv"
	"strings"
)

// ── 时间区间模型 ──────────────────────────────────────────────
//
// 区间为半开区间 [Start, End)，锚定到星期几；
// 仅首尾相接（如 [09:00,10:00) 与 [10:00,11:00)）不算重叠。
// 所有冲突判定最终都归结为 Overlaps。
// ─────────────────────────────────────────────────────────────

// Weekday ISO 星期：1=周一 … 7=周日
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Valid 是否为 1-7
func (d Weekday) Valid() bool { return d >= Monday && d <= Sunday }

// String 英文星期名
func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return weekdayNames[d]
}

// ParseWeekday 解析英文星期名（不区分大小写，支持三字母缩写）
func ParseWeekday(s string) (Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if len(v) >= 3 {
		for d := Monday; d <= Sunday; d++ {
			name := strings.ToLower(weekdayNames[d])
			if v == name || v == name[:3] {
				return d, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: 无法识别的星期 %q", ErrInvalidRange, s)
}

// TimeOfDay 当天零点起的秒数，秒级精度
type TimeOfDay int

const secondsPerDay = 24 * 60 * 60

// ParseTimeOfDay 解析 "HH:MM:SS" 或 "HH:MM"（补 :00），不接受其他写法
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	v := strings.TrimSpace(s)
	parts := strings.Split(v, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: 时间格式应为 HH:MM:SS，实际为 %q", ErrInvalidRange, s)
	}

	limits := []int{23, 59, 59}
	var fields [3]int
	for i, p := range parts {
		if len(p) != 2 || !isDigits(p) {
			return 0, fmt.Errorf("%w: 时间格式应为 HH:MM:SS，实际为 %q", ErrInvalidRange, s)
		}
		n, _ := strconv.Atoi(p)
		if n > limits[i] {
			return 0, fmt.Errorf("%w: 时间 %q 超出范围", ErrInvalidRange, s)
		}
		fields[i] = n
	}

	return TimeOfDay(fields[0]*3600 + fields[1]*60 + fields[2]), nil
}

// parseStoredTimeOfDay 解析数据库 time 列的值
// 仅允许完整 HH:MM:SS 之后跟 1-6 位小数秒，按秒截断
func parseStoredTimeOfDay(s string) (TimeOfDay, error) {
	v := strings.TrimSpace(s)
	if i := strings.IndexByte(v, '.'); i >= 0 {
		frac := v[i+1:]
		if i != len("15:04:05") || len(frac) == 0 || len(frac) > 6 || !isDigits(frac) {
			return 0, fmt.Errorf("%w: 时间格式应为 HH:MM:SS，实际为 %q", ErrInvalidRange, s)
		}
		v = v[:i]
	}
	return ParseTimeOfDay(v)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// String 格式化为 "HH:MM:SS"
func (t TimeOfDay) String() string {
	s := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

// TimeInterval 锚定星期的半开时间区间
type TimeInterval struct {
	Day   Weekday
	Start TimeOfDay
	End   TimeOfDay
}

// Validate 校验星期合法且 Start < End（零长度区间非法）
func (iv TimeInterval) Validate() error {
	if !iv.Day.Valid() {
		return fmt.Errorf("%w: 星期必须在 1-7 之间", ErrInvalidRange)
	}
	if iv.Start < 0 || iv.End > secondsPerDay {
		return fmt.Errorf("%w: 时间超出一天范围", ErrInvalidRange)
	}
	if iv.Start >= iv.End {
		return fmt.Errorf("%w: 开始时间 %s 必须早于结束时间 %s", ErrInvalidRange, iv.Start, iv.End)
	}
	return nil
}

// String 形如 "Monday 09:00:00-10:00:00"
func (iv TimeInterval) String() string {
	return fmt.Sprintf("%s %s-%s", iv.Day, iv.Start, iv.End)
}

// Overlaps 同一天且 a.Start < b.End && b.Start < a.End 时重叠；不同天恒为 false
func Overlaps(a, b TimeInterval) bool {
	if a.Day != b.Day {
		return false
	}
	return a.Start < b.End && b.Start < a.End
}

// SameSpan 星期与起止时间完全一致
func SameSpan(a, b TimeInterval) bool {
	return a.Day == b.Day && a.Start == b.Start && a.End == b.End
}

// NewTimeInterval 由字符串构造并校验区间
func NewTimeInterval(day Weekday, start, end string) (TimeInterval, error) {
	return buildInterval(day, start, end, ParseTimeOfDay)
}

func buildInterval(day Weekday, start, end string, parse func(string) (TimeOfDay, error)) (TimeInterval, error) {
	s, err := parse(start)
	if err != nil {
		return TimeInterval{}, err
	}
	e, err := parse(end)
	if err != nil {
		return TimeInterval{}, err
	}
	iv := TimeInterval{Day: day, Start: s, End: e}
	if err := iv.Validate(); err != nil {
		return TimeInterval{}, err
	}
	return iv, nil
}
