// Package sessionconfig loads the YAML profile that cmd/eacdemo uses to
// drive one eMRTD terminal session: which reader to open, which
// authentication templates to run, and where to find the key material for
// each. Structurally grounded on barnettlynn-nfctools'
// sdmconfig/internal/config.
package sessionconfig

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rovanhart/eac-sm/pkg/mse"
)

// Config is one terminal session profile.
type Config struct {
	Reader  ReaderConfig     `yaml:"reader"`
	PACE    *PACEConfig      `yaml:"pace"`
	CA      *CAConfig        `yaml:"chip_authentication"`
	TA      *TAConfig        `yaml:"terminal_authentication"`
	SM      *SecureMessaging `yaml:"secure_messaging"`
	Runtime RuntimeConfig    `yaml:"runtime"`
}

// SecureMessaging carries the session keys a completed key-agreement
// protocol (PACE/CA) would hand to the Secure Messaging engine. This
// package never performs key agreement itself (spec.md §1 Non-goals); the
// demo reads keys already agreed out of band, the way an integration test
// harness would.
type SecureMessaging struct {
	Suite         string `yaml:"suite"` // "aes-cmac" or "des-retail-mac"
	KEncHexFile   string `yaml:"kenc_hex_file"`
	KMacHexFile   string `yaml:"kmac_hex_file"`
	InitialSSCHex string `yaml:"initial_ssc_hex"`
}

// ReaderConfig selects the PC/SC reader to open.
type ReaderConfig struct {
	Index *int `yaml:"index"`
}

// PACEConfig configures an MSE:Set AT for PACE.
type PACEConfig struct {
	ProtocolOID    string `yaml:"protocol_oid"`
	PasswordSource string `yaml:"password_source"` // "can" or "mrz"
}

// CAConfig configures an MSE:Set AT for Chip Authentication.
type CAConfig struct {
	ProtocolOID       string `yaml:"protocol_oid"`
	PrivateKeyKeyFile string `yaml:"private_key_hex_file"`
}

// TAConfig configures an MSE:Set AT for Terminal Authentication.
type TAConfig struct {
	ProtocolOID string `yaml:"protocol_oid"`
	CHATHexFile string `yaml:"chat_hex_file"`
}

// RuntimeConfig holds session-wide toggles.
type RuntimeConfig struct {
	ExtendedLength *bool  `yaml:"extended_length"`
	LogLevel       string `yaml:"log_level"`
}

// Load reads and validates the YAML profile at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sessionconfig: read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("sessionconfig: parse %s: %w", path, err)
	}

	cfg.resolvePaths(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Reader.Index == nil {
		return fmt.Errorf("sessionconfig: reader.index is required")
	}
	if *c.Reader.Index < 0 {
		return fmt.Errorf("sessionconfig: reader.index must be >= 0")
	}

	if c.PACE == nil && c.CA == nil && c.TA == nil {
		return fmt.Errorf("sessionconfig: at least one of pace, chip_authentication, terminal_authentication must be configured")
	}

	if c.PACE != nil {
		if err := validateOID(c.PACE.ProtocolOID, "pace.protocol_oid"); err != nil {
			return err
		}
		switch c.PACE.PasswordSource {
		case "can", "mrz":
		default:
			return fmt.Errorf("sessionconfig: pace.password_source must be \"can\" or \"mrz\", got %q", c.PACE.PasswordSource)
		}
	}

	if c.CA != nil {
		if err := validateOID(c.CA.ProtocolOID, "chip_authentication.protocol_oid"); err != nil {
			return err
		}
		if err := validateReadableFile(c.CA.PrivateKeyKeyFile, "chip_authentication.private_key_hex_file"); err != nil {
			return err
		}
	}

	if c.TA != nil {
		if err := validateOID(c.TA.ProtocolOID, "terminal_authentication.protocol_oid"); err != nil {
			return err
		}
		if err := validateReadableFile(c.TA.CHATHexFile, "terminal_authentication.chat_hex_file"); err != nil {
			return err
		}
	}

	if c.SM != nil {
		switch c.SM.Suite {
		case "aes-cmac", "des-retail-mac":
		default:
			return fmt.Errorf("sessionconfig: secure_messaging.suite must be \"aes-cmac\" or \"des-retail-mac\", got %q", c.SM.Suite)
		}
		if err := validateReadableFile(c.SM.KEncHexFile, "secure_messaging.kenc_hex_file"); err != nil {
			return err
		}
		if err := validateReadableFile(c.SM.KMacHexFile, "secure_messaging.kmac_hex_file"); err != nil {
			return err
		}
		if strings.TrimSpace(c.SM.InitialSSCHex) == "" {
			return fmt.Errorf("sessionconfig: secure_messaging.initial_ssc_hex is required")
		}
		if _, err := hex.DecodeString(c.SM.InitialSSCHex); err != nil {
			return fmt.Errorf("sessionconfig: secure_messaging.initial_ssc_hex: %w", err)
		}
	}

	if c.Runtime.ExtendedLength == nil {
		return fmt.Errorf("sessionconfig: runtime.extended_length is required")
	}

	return nil
}

func (c *Config) resolvePaths(configPath string) {
	dir := filepath.Dir(configPath)
	if c.CA != nil {
		c.CA.PrivateKeyKeyFile = resolvePath(dir, c.CA.PrivateKeyKeyFile)
	}
	if c.TA != nil {
		c.TA.CHATHexFile = resolvePath(dir, c.TA.CHATHexFile)
	}
	if c.SM != nil {
		c.SM.KEncHexFile = resolvePath(dir, c.SM.KEncHexFile)
		c.SM.KMacHexFile = resolvePath(dir, c.SM.KMacHexFile)
	}
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

func validateReadableFile(path, field string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("sessionconfig: %s is required", field)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("sessionconfig: %s: %w", field, err)
	}
	if info.IsDir() {
		return fmt.Errorf("sessionconfig: %s must point to a file, got a directory", field)
	}
	return nil
}

// validateOID checks that oid parses as a dotted-decimal object
// identifier, reusing pkg/mse's own parser so the config layer and the
// MSE builder never disagree about what counts as valid.
func validateOID(oid, field string) error {
	if strings.TrimSpace(oid) == "" {
		return fmt.Errorf("sessionconfig: %s is required", field)
	}
	if _, err := mse.ParseOID(oid); err != nil {
		return fmt.Errorf("sessionconfig: %s: %w", field, err)
	}
	return nil
}
