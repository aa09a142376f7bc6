package serverconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables. Unprefixed names such as
// REDIS_URL and NODE_ENV are honored for compatibility with the existing
// deployment; the LIFEPLAN_ form wins when both are set.
//
//   - LIFEPLAN_ADDR, LIFEPLAN_DEV, LIFEPLAN_TRUSTED_PROXIES (comma separated)
//   - LIFEPLAN_LOG_FORMAT, LIFEPLAN_LOG_LEVEL
//   - LIFEPLAN_REDIS_URL / REDIS_URL
//   - LIFEPLAN_DATABASE_DRIVER, LIFEPLAN_DATABASE_URL / DATABASE_URL
//   - LIFEPLAN_ENCRYPTION_KEY / ENCRYPTION_KEY
//   - LIFEPLAN_ENV / NODE_ENV
//   - LIFEPLAN_SESSION_SECRET (base64, enables hs256 signed cookies)
//   - LIFEPLAN_ARCHIVE_BUCKET (enables the archive), LIFEPLAN_ARCHIVE_REGION,
//     LIFEPLAN_ARCHIVE_ENDPOINT, LIFEPLAN_ARCHIVE_ACCESS_KEY, LIFEPLAN_ARCHIVE_SECRET_KEY
//   - LIFEPLAN_IDLE_TIMEOUT, LIFEPLAN_ABSOLUTE_TIMEOUT (Go durations)
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	get := func(keys ...string) (string, bool) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
		return "", false
	}

	if v, ok := get("LIFEPLAN_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := get("LIFEPLAN_DEV"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LIFEPLAN_DEV: %w", err)
		}
		c.Server.Dev = b
	}
	if v, ok := get("LIFEPLAN_TRUSTED_PROXIES"); ok {
		c.Server.TrustedProxies = splitList(v)
	}
	if v, ok := get("LIFEPLAN_LOG_FORMAT"); ok {
		c.Log.Format = v
	}
	if v, ok := get("LIFEPLAN_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := get("LIFEPLAN_REDIS_URL", "REDIS_URL"); ok {
		c.Redis.URL = v
	}
	if v, ok := get("LIFEPLAN_DATABASE_DRIVER"); ok {
		c.Database.Driver = v
	}
	if v, ok := get("LIFEPLAN_DATABASE_URL", "DATABASE_URL"); ok {
		c.Database.URL = v
		if c.Database.Driver == "memory" {
			c.Database.Driver = "postgres"
		}
	}
	if v, ok := get("LIFEPLAN_ENCRYPTION_KEY", "ENCRYPTION_KEY"); ok {
		c.Auth.EncryptionKey = v
	}
	if v, ok := get("LIFEPLAN_ENV", "NODE_ENV"); ok {
		c.Auth.Environment = v
	}
	if v, ok := get("LIFEPLAN_SESSION_SECRET"); ok {
		c.Auth.SessionToken.Enabled = true
		c.Auth.SessionToken.SigningMethod = "hs256"
		c.Auth.SessionToken.Secret = v
	}
	if v, ok := get("LIFEPLAN_ARCHIVE_BUCKET"); ok {
		c.Archive.Enabled = true
		c.Archive.Bucket = v
	}
	if v, ok := get("LIFEPLAN_ARCHIVE_REGION"); ok {
		c.Archive.Region = v
	}
	if v, ok := get("LIFEPLAN_ARCHIVE_ENDPOINT"); ok {
		c.Archive.Endpoint = v
	}
	if v, ok := get("LIFEPLAN_ARCHIVE_ACCESS_KEY"); ok {
		c.Archive.AccessKeyID = v
	}
	if v, ok := get("LIFEPLAN_ARCHIVE_SECRET_KEY"); ok {
		c.Archive.SecretAccessKey = v
	}
	for key, dst := range map[string]*time.Duration{
		"LIFEPLAN_IDLE_TIMEOUT":     &c.Auth.IdleTimeout,
		"LIFEPLAN_ABSOLUTE_TIMEOUT": &c.Auth.AbsoluteTimeout,
	} {
		if v, ok := get(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
