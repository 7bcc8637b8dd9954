package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// AnyDomain disables the sender domain check
const AnyDomain = "*"

// Config application configuration
type Config struct {
	// Outbound identity
	FromEmail string `env:"FROM_EMAIL,required"`
	FromName  string `env:"FROM_NAME,required"`

	// Shared IMAP/SMTP credentials
	Username string `env:"USERNAME,required"`
	Password string `env:"PASSWORD,required"`

	// Servers, host or host:port
	IMAPServer string `env:"IMAP_SERVER,required"`
	SMTPServer string `env:"SMTP_SERVER,required"`

	IMAPDialTimeout time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`
	SMTPStartTLS    bool          `env:"SMTP_STARTTLS" envDefault:"false"`
	SMTPTimeout     time.Duration `env:"SMTP_TIMEOUT" envDefault:"30s"`

	// Validation
	AllowedSenderDomains   []string `env:"ALLOWED_SENDER_DOMAINS,required" envSeparator:";"`
	BarcodeValidationRegex string   `env:"BARCODE_VALIDATION_REGEX,required"`
	BarcodeTypes           []string `env:"BARCODE_TYPES,required" envSeparator:";"`

	// Output
	PDFSaveLocation      string `env:"PDF_SAVE_LOCATION,required"`
	IncludePageNumbers   bool   `env:"INCLUDE_PAGE_NUMBERS,required"`
	IncludeRecvWatermark bool   `env:"INCLUDE_RECV_WATERMARK,required"`
	TimeZone             string `env:"TZ,required"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/ingest.db"`

	// Telegram alerts (optional)
	TelegramToken  string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID int64  `env:"TELEGRAM_CHAT_ID"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"

	location *time.Location
	pattern  *regexp.Regexp
}

// TelegramEnabled returns true if operator alerts are configured
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// AnySenderDomain reports whether the domain allowlist is disabled
func (c *Config) AnySenderDomain() bool {
	return len(c.AllowedSenderDomains) == 1 && c.AllowedSenderDomains[0] == AnyDomain
}

// Location returns the time zone used for watermark timestamps
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// BarcodePattern returns the compiled barcode pattern, anchored at the start of the text
func (c *Config) BarcodePattern() *regexp.Regexp {
	return c.pattern
}

// IMAPAddress returns IMAP_SERVER with the implicit TLS port if none was given
func (c *Config) IMAPAddress() string {
	return withDefaultPort(c.IMAPServer, "993")
}

// SMTPAddress returns SMTP_SERVER with the submission port if none was given
func (c *Config) SMTPAddress() string {
	return withDefaultPort(c.SMTPServer, "25")
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate normalizes list values and compiles derived settings
func (c *Config) validate() error {
	c.AllowedSenderDomains = cleanList(c.AllowedSenderDomains)
	if len(c.AllowedSenderDomains) == 0 {
		return fmt.Errorf("ALLOWED_SENDER_DOMAINS must list at least one domain or %q", AnyDomain)
	}

	c.BarcodeTypes = cleanList(c.BarcodeTypes)
	if len(c.BarcodeTypes) == 0 {
		return fmt.Errorf("BARCODE_TYPES must list at least one barcode type")
	}

	pattern, err := CompileBarcodePattern(c.BarcodeValidationRegex)
	if err != nil {
		return fmt.Errorf("invalid BARCODE_VALIDATION_REGEX: %w", err)
	}
	c.pattern = pattern

	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid TZ %q: %w", c.TimeZone, err)
	}
	c.location = loc

	if strings.TrimSpace(c.PDFSaveLocation) == "" {
		return fmt.Errorf("PDF_SAVE_LOCATION must not be empty")
	}

	return nil
}

// CompileBarcodePattern compiles expr so that it only matches at the start of the text
func CompileBarcodePattern(expr string) (*regexp.Regexp, error) {
	return regexp.Compile(`^(?:` + expr + `)`)
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func withDefaultPort(server, port string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, port)
}
