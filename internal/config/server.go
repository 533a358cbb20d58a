package config

import (
	"strconv"
	"strings"
	"time"
)

// ServerPort is the HTTP listen port.
func ServerPort() string {
	return GetEnv("PORT", "8080")
}

// ServerReadHeaderTimeout returns the amount of time allowed to read request headers.
func ServerReadHeaderTimeout() time.Duration {
	return MustParseDuration("SERVER_READ_HEADER_TIMEOUT", "5s")
}

// ServerIdleTimeout returns the maximum amount of time to wait for the next request when keep-alives are enabled.
// Websocket connections are hijacked and are not subject to it.
func ServerIdleTimeout() time.Duration {
	return MustParseDuration("SERVER_IDLE_TIMEOUT", "60s")
}

// CORSAllowedOrigins lists browser origins allowed to call the API and open sockets.
func CORSAllowedOrigins() []string {
	return GetList("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3002")
}

// MaxFrameBytes bounds a single inbound websocket frame.
// Supports raw integers (bytes) or human-friendly values like "64KB".
func MaxFrameBytes() int64 {
	val := GetEnv("MAX_FRAME_BYTES", "64KB")
	n, err := parseBytes(val)
	if err != nil || n <= 0 {
		return 64 << 10
	}
	return n
}

// SocketPingInterval is how often idle sockets are pinged.
func SocketPingInterval() time.Duration {
	return MustParseDuration("SOCKET_PING_INTERVAL", "30s")
}

// DBWorkerCount controls the number of DB workers.
func DBWorkerCount() int {
	return parseIntEnv("DB_WORKER_COUNT", 4)
}

// CryptoWorkerCount controls the number of bcrypt workers.
func CryptoWorkerCount() int {
	return parseIntEnv("CRYPTO_WORKER_COUNT", 4)
}

// MailWorkerCount controls the number of SMTP delivery workers.
func MailWorkerCount() int {
	return parseIntEnv("MAIL_WORKER_COUNT", 2)
}

// WorkerQueueSize controls the queue size for each worker pool.
func WorkerQueueSize() int {
	return parseIntEnv("WORKER_QUEUE_SIZE", 1024)
}

func parseBytes(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "KB"):
		mult = 1 << 10
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "MB"):
		mult = 1 << 20
		s = strings.TrimSuffix(s, "MB")
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	return int64(n * float64(mult)), nil
}
