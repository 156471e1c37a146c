package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func Int(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// String reads a string env var, falling back to def when unset or blank.
func String(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

// Seconds reads an integer env var as a count of seconds and returns it as
// a time.Duration, falling back to defSeconds when unset or malformed.
func Seconds(name string, defSeconds int) time.Duration {
	return time.Duration(Int(name, defSeconds)) * time.Second
}

// Bool reads a loosely-typed boolean env var ("1", "true", "yes").
func Bool(name string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}
