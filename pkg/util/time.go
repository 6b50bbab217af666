package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseSeconds 解析以秒为单位的时长，允许小数，不允许负数
func ParseSeconds(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seconds %q", s)
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64/float64(time.Second) {
		return 0, fmt.Errorf("seconds out of range: %q", s)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// FormatSeconds 和ParseSeconds互逆
func FormatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// FormatTime 零值输出空串
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05.000")
}
