package authcore

import "time"

type SecurityReport struct {
	ProductionMode        bool
	SessionCookieSigned   bool
	SigningAlgorithm      string
	IdleTimeout           time.Duration
	AbsoluteTimeout       time.Duration
	MaxConcurrentSessions int
	Argon2                PasswordConfigReport
	FieldEncryption       bool
	LoginLockoutActive    bool
	RegistrationLimited   bool
	MFALimited            bool
	BackupCodeCount       int
	AuditEnabled          bool
	CSRFExemptPrefixes    []string
	LintWarnings          []string
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// SecurityReport summarizes the effective security posture for startup logs.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	cfg := e.config
	algo := ""
	if cfg.SessionToken.Enabled {
		algo = cfg.SessionToken.SigningMethod
	}

	return SecurityReport{
		ProductionMode:        cfg.Production(),
		SessionCookieSigned:   e.cookieSigner != nil,
		SigningAlgorithm:      algo,
		IdleTimeout:           cfg.Session.IdleTimeout,
		AbsoluteTimeout:       cfg.Session.AbsoluteTimeout,
		MaxConcurrentSessions: cfg.Session.MaxConcurrent,
		Argon2: PasswordConfigReport{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
		FieldEncryption:     e.cipher != nil,
		LoginLockoutActive:  cfg.RateLimit.LoginMaxAttempts > 0 && cfg.RateLimit.LoginLockout > 0,
		RegistrationLimited: cfg.RateLimit.RegistrationMaxAttempts > 0,
		MFALimited:          cfg.MFA.MaxAttempts > 0,
		BackupCodeCount:     cfg.MFA.BackupCodeCount,
		AuditEnabled:        e.audit != nil,
		CSRFExemptPrefixes:  cloneStrings(cfg.CSRF.ExemptPrefixes),
		LintWarnings:        cfg.Lint().Codes(),
	}
}
