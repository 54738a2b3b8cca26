package config

// Redacted returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder. Use this when logging the active configuration.
func Redacted(cfg *Config) Config {
	out := *cfg

	redact(&out.APIKey)
	redact(&out.APISecret)
	redact(&out.Postgres.DSN)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	out.Currencies = append([]string(nil), cfg.Currencies...)
	out.Linears = append([]string(nil), cfg.Linears...)
	out.Only = append([]string(nil), cfg.Only...)

	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
