package config

import "strconv"

// DBPath is the SQLite database file.
func DBPath() string {
	return GetEnv("DB_PATH", "blaze.db")
}

// CodeStoreBackend selects where one-time codes live: sqlite, memory or redis.
func CodeStoreBackend() string {
	return GetEnv("CODE_STORE", "sqlite")
}

func RedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func RedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func RedisDB() int {
	n, err := strconv.Atoi(GetEnv("REDIS_DB", "0"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
