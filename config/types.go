package config

import "time"

type AppConfig struct {
	DBDriver       string            `yaml:"db_driver" env:"CRISISHUB_DB_DRIVER" env-default:"sqlite"`
	DBURL          string            `yaml:"db_url" env:"CRISISHUB_DB_URL" env-default:"data/crisishub.db"`
	ListenAddr     string            `yaml:"listen_addr" env:"CRISISHUB_LISTEN_ADDR" env-default:"0.0.0.0:8080"`
	SessionTTL     time.Duration     `yaml:"session_ttl" env:"CRISISHUB_SESSION_TTL" env-default:"3h"`
	BootstrapAdmin BootstrapConfig   `yaml:"bootstrap"`
	Uploads        UploadsConfig     `yaml:"uploads"`
	Maintenance    MaintenanceConfig `yaml:"maintenance"`
	Security       SecurityConfig    `yaml:"security"`
}

type BootstrapConfig struct {
	AdminUsername string `yaml:"admin_username" env:"CRISISHUB_ADMIN_USERNAME" env-default:"admin"`
	AdminEmail    string `yaml:"admin_email" env:"CRISISHUB_ADMIN_EMAIL" env-default:"admin@crisishub.local"`
	AdminPassword string `yaml:"admin_password" env:"CRISISHUB_ADMIN_PASSWORD" env-default:"admin123"`
}

type UploadsConfig struct {
	Dir      string `yaml:"dir" env:"CRISISHUB_UPLOADS_DIR" env-default:"data/uploads"`
	MaxBytes int64  `yaml:"max_bytes" env:"CRISISHUB_UPLOADS_MAX_BYTES" env-default:"16777216"`
}

type MaintenanceConfig struct {
	Enabled            bool   `yaml:"enabled" env:"CRISISHUB_MAINTENANCE_ENABLED" env-default:"true"`
	Schedule           string `yaml:"schedule" env:"CRISISHUB_MAINTENANCE_SCHEDULE" env-default:"@every 5m"`
	AuditRetentionDays int    `yaml:"audit_retention_days" env:"CRISISHUB_AUDIT_RETENTION_DAYS" env-default:"90"`
}

type SecurityConfig struct {
	TrustedProxies []string `yaml:"trusted_proxies" env:"CRISISHUB_TRUSTED_PROXIES" env-separator:","`
}

const maxSessionTTL = 12 * time.Hour

func (c *AppConfig) EffectiveSessionTTL() time.Duration {
	ttl := c.SessionTTL
	if ttl <= 0 || ttl > maxSessionTTL {
		ttl = maxSessionTTL
	}
	return ttl
}
