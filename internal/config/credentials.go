package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Credential keys, one per backend
const (
	AnthropicKey = "ANTHROPIC_API_KEY"
	OpenAIKey    = "OPENAI_API_KEY"
	GeminiKey    = "GEMINI_API_KEY"
)

// SourceEnvironment marks a key taken from the process environment
const SourceEnvironment = "environment"

var providerKeys = map[string]string{
	"anthropic": AnthropicKey,
	"openai":    OpenAIKey,
	"gemini":    GeminiKey,
}

// KeyFor returns the credential key a provider reads
func KeyFor(provider string) string {
	return providerKeys[provider]
}

// Layer is one .env file consulted during resolution
type Layer struct {
	Name string // working-directory, user-global, installation
	Path string
}

// DefaultLayers returns the .env files in resolution order: working
// directory, ~/.orca and the directory holding the executable.
func DefaultLayers() []Layer {
	var layers []Layer
	if wd, err := os.Getwd(); err == nil {
		layers = append(layers, Layer{Name: "working-directory", Path: filepath.Join(wd, ".env")})
	}
	if home, err := os.UserHomeDir(); err == nil {
		layers = append(layers, Layer{Name: "user-global", Path: filepath.Join(home, DirName, ".env")})
	}
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		layers = append(layers, Layer{Name: "installation", Path: filepath.Join(filepath.Dir(exe), ".env")})
	}
	return layers
}

// Credentials holds the resolved keys and the layer each came from
type Credentials struct {
	values  map[string]string
	sources map[string]string
}

// Get returns the value for key
func (c *Credentials) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok && v != ""
}

// Has reports whether a provider has a usable key
func (c *Credentials) Has(provider string) bool {
	_, ok := c.Get(KeyFor(provider))
	return ok
}

// ForProvider returns the key for a provider
func (c *Credentials) ForProvider(provider string) string {
	v, _ := c.Get(KeyFor(provider))
	return v
}

// Source returns the layer a key was resolved from
func (c *Credentials) Source(key string) string {
	return c.sources[key]
}

// Sources maps provider names to the layer their key came from
func (c *Credentials) Sources() map[string]string {
	out := make(map[string]string)
	for provider, key := range providerKeys {
		if src, ok := c.sources[key]; ok {
			out[provider] = src
		}
	}
	return out
}

// Keys returns the resolved key names, sorted
func (c *Credentials) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ResolveCredentials loads every layer and resolves each provider key. The
// process environment wins over every file; among files the first layer
// defining a key wins. Missing files are skipped.
func ResolveCredentials(layers []Layer) (*Credentials, error) {
	creds := &Credentials{
		values:  make(map[string]string),
		sources: make(map[string]string),
	}

	files := make([]map[string]string, len(layers))
	for i, layer := range layers {
		vals, err := godotenv.Read(layer.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s credentials from %s: %w", layer.Name, layer.Path, err)
		}
		files[i] = vals
	}

	for _, key := range providerKeys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			creds.values[key] = v
			creds.sources[key] = SourceEnvironment
			continue
		}
		for i, vals := range files {
			if v := strings.TrimSpace(vals[key]); v != "" {
				creds.values[key] = v
				creds.sources[key] = layers[i].Name
				break
			}
		}
	}
	return creds, nil
}
