package config

import "time"

// OTPTTL is how long an issued one-time code stays redeemable.
func OTPTTL() time.Duration {
	return MustParseDuration("OTP_TTL", "30m")
}

// OTPLength is the number of characters in a one-time code.
func OTPLength() int {
	return parseIntEnv("OTP_LENGTH", 6)
}

// PasswordMinLength is the shortest password the registration flow accepts.
func PasswordMinLength() int {
	return parseIntEnv("PASSWORD_MIN_LENGTH", 6)
}

// MaxStepAttempts caps failed replies per step. Zero means unbounded.
func MaxStepAttempts() int {
	return parseNonNegativeIntEnv("MAX_STEP_ATTEMPTS", 0)
}

// LLMBaseURL is the OpenAI-compatible API root.
func LLMBaseURL() string {
	return GetEnv("LLM_BASE_URL", "https://api.openai.com/v1")
}

func LLMAPIKey() string {
	return GetEnv("LLM_API_KEY", "")
}

func LLMModel() string {
	return GetEnv("LLM_MODEL", "gpt-3.5-turbo-0125")
}

// LLMTimeout bounds a single completion request.
func LLMTimeout() time.Duration {
	return MustParseDuration("LLM_TIMEOUT", "15s")
}
