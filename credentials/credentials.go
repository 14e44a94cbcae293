// Package credentials loads provider API keys from standard locations.
//
// A credentials.toml holds one section per provider:
//
//	[google]
//	api_key = "..."
//
//	[openai]
//	api_key = "..."
//
// The file must be mode 0400. Keys missing from the file fall back to
// GOOGLE_API_KEY / GEMINI_API_KEY and OPENAI_API_KEY.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrInsecurePermissions is returned when credentials file has overly permissive permissions.
var ErrInsecurePermissions = fmt.Errorf("credentials file has insecure permissions")

// Credentials holds API keys loaded from credentials.toml.
type Credentials struct {
	Google *ProviderCreds `toml:"google"`
	OpenAI *ProviderCreds `toml:"openai"`

	// Default is used for any provider without its own section.
	Default *ProviderCreds `toml:"default"`
}

// ProviderCreds holds credentials for a single provider
type ProviderCreds struct {
	APIKey string `toml:"api_key"`
}

// StandardPaths returns the standard credential file locations in order of priority
func StandardPaths() []string {
	paths := []string{"credentials.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "renderkit", "credentials.toml"),
			filepath.Join(home, ".renderkit", "credentials.toml"),
		)
	}
	return paths
}

// Load loads credentials from the first available standard location.
// A missing file is not an error: it returns nil credentials and an empty path.
func Load() (*Credentials, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			creds, err := LoadFile(path)
			if err != nil {
				return nil, path, err
			}
			return creds, path, nil
		}
	}
	return nil, "", nil
}

// LoadFile loads credentials from a specific file.
// Returns ErrInsecurePermissions if file is readable by group or others.
func LoadFile(path string) (*Credentials, error) {
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if mode := info.Mode().Perm(); mode != 0400 {
			return nil, fmt.Errorf("%w: %s has mode %04o (must be 0400)",
				ErrInsecurePermissions, path, mode)
		}
	}

	var creds Credentials
	md, err := toml.DecodeFile(path, &creds)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse %s: unknown keys %v", path, undecoded)
	}
	return &creds, nil
}

// section maps a render provider name to its credentials section.
func (c *Credentials) section(provider string) *ProviderCreds {
	switch strings.ToLower(provider) {
	case "google", "gemini", "imagen":
		return c.Google
	case "openai":
		return c.OpenAI
	}
	return nil
}

// GetAPIKey returns the API key for a provider.
// Priority: provider section > [default] section > environment variable.
func (c *Credentials) GetAPIKey(provider string) string {
	if c != nil {
		if s := c.section(provider); s != nil && s.APIKey != "" {
			return s.APIKey
		}
		if c.Default != nil && c.Default.APIKey != "" {
			return c.Default.APIKey
		}
	}
	for _, name := range envVarsForProvider(provider) {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// envVarsForProvider returns the environment variables checked for a provider.
func envVarsForProvider(provider string) []string {
	switch strings.ToLower(provider) {
	case "google", "gemini", "imagen":
		return []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}
	case "openai":
		return []string{"OPENAI_API_KEY"}
	default:
		return []string{strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"}
	}
}
