package skillexec

import (
	"os"
	"time"
)

func readWasm(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func durationFromMs(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func nsToDuration(ns int64) time.Duration {
	return time.Duration(ns)
}
