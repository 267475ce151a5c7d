package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// MissingKey is sent when no key could be found; the API then rejects
	// the request with an authorization error instead of failing at startup.
	MissingKey = "MISSING_KEY"
	// ErrorReadingKey is used when a key file exists but cannot be read.
	ErrorReadingKey = "ERROR_READING_KEY"

	KeyFileName = "apikey.txt"
)

// ExecutableDir is the directory holding the running binary, or "." when it
// cannot be determined.
func ExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

// APIKeySource names where a resolved key came from.
type APIKeySource string

const (
	SourceConfig  APIKeySource = "config"
	SourceEnv     APIKeySource = "env"
	SourceFile    APIKeySource = "file"
	SourceMissing APIKeySource = "missing"
)

// ResolveAPIKey looks for the key in order: llm.api_key, OPENAI_API_KEY,
// llm.api_key_file, apikey.txt in baseDir, then apikey.txt three directories
// above baseDir. Nothing found yields MissingKey.
func ResolveAPIKey(c LLMConfig, baseDir string) (string, APIKeySource) {
	if key := strings.TrimSpace(c.APIKey); key != "" {
		return key, SourceConfig
	}
	if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
		return key, SourceEnv
	}

	candidates := []string{
		filepath.Join(baseDir, KeyFileName),
		filepath.Join(baseDir, "..", "..", "..", KeyFileName),
	}
	if c.APIKeyFile != "" {
		candidates = append([]string{c.APIKeyFile}, candidates...)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return ErrorReadingKey, SourceFile
		}
		return strings.TrimSpace(string(data)), SourceFile
	}

	return MissingKey, SourceMissing
}
