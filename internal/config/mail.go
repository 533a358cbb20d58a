package config

// SMTPAddr is host:port of the submission server. Empty disables code delivery.
func SMTPAddr() string {
	return GetEnv("SMTP_ADDR", "")
}

// SMTPSecurity is starttls (default), tls for implicit TLS, or none.
func SMTPSecurity() string {
	return GetEnv("SMTP_SECURITY", "starttls")
}

func SMTPUsername() string {
	return GetEnv("SMTP_USERNAME", "")
}

func SMTPPassword() string {
	return GetEnv("SMTP_PASSWORD", "")
}

func SMTPFrom() string {
	return GetEnv("SMTP_FROM", "blaze@localhost")
}

// DKIMDomain, DKIMSelector and DKIMKeyFile enable signing when all three are set.
func DKIMDomain() string {
	return GetEnv("DKIM_DOMAIN", "")
}

func DKIMSelector() string {
	return GetEnv("DKIM_SELECTOR", "")
}

func DKIMKeyFile() string {
	return GetEnv("DKIM_KEY_FILE", "")
}
