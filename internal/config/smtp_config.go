package config

type SmtpConfig interface {
	GetSmtpHost() string
	GetSmtpPort() string
	GetSmtpAccount() string
	GetSmtpPassword() string
}

type Smtp struct{}

var _ SmtpConfig = Smtp{}

// SMTP settings are optional: without an account configured, token delivery
// is skipped and logins still succeed.

func (Smtp) GetSmtpHost() string {
	return GetEnv("SMTP_HOST", "")
}

func (Smtp) GetSmtpPort() string {
	return GetEnv("SMTP_PORT", "465")
}

func (Smtp) GetSmtpAccount() string {
	return GetEnv("SMTP_ACCOUNT", "")
}

func (Smtp) GetSmtpPassword() string {
	return GetEnv("SMTP_PASSWORD", "")
}
