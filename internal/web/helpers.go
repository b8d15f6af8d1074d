package web

import (
	"strconv"
	"time"
)

func itoa(value int) string {
	return strconv.Itoa(value)
}

func utoa(value uint) string {
	return strconv.FormatUint(uint64(value), 10)
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.UTC().Format("2006-01-02 15:04:05")
}
