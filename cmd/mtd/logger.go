package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// setupWatchLogger creates a rotating log file for the watch command and
// returns a printf-style logging function writing through it.
func setupWatchLogger(logPath string) (*lumberjack.Logger, func(string, ...interface{})) {
	logF := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    getEnvInt("MTD_LOG_MAX_SIZE", 10),
		MaxBackups: getEnvInt("MTD_LOG_MAX_BACKUPS", 3),
		MaxAge:     getEnvInt("MTD_LOG_MAX_AGE", 7),
		Compress:   true,
	}

	logf := func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		timestamp := time.Now().Format("2006-01-02 15:04:05")
		_, _ = fmt.Fprintf(logF, "[%s] %s\n", timestamp, msg)
	}
	return logF, logf
}

func getEnvInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return fallback
}
