package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DotEnvPath returns the absolute path to the secrets file (~/.opsroute/.env).
func DotEnvPath() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".env"), nil
}

// LoadDotEnv reads ~/.opsroute/.env and returns key/value pairs.
//
// Parsing rules:
//   - Empty lines and lines starting with '#' are ignored.
//   - Lines have the form KEY=VALUE, optionally prefixed with "export ".
//   - Whitespace around KEY and VALUE is trimmed.
//   - One pair of matching surrounding quotes is removed from VALUE.
func LoadDotEnv() (map[string]string, error) {
	p, err := DotEnvPath()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("cannot open dotenv file %s: %w", p, err)
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := strings.Cut(line, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		out[k] = unquote(strings.TrimSpace(v))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read dotenv file %s: %w", p, err)
	}
	return out, nil
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// GetConfigValue returns the effective value for key, using process environment
// variables first and falling back to ~/.opsroute/.env.
func GetConfigValue(key string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	dotenv, err := LoadDotEnv()
	if err != nil {
		return "", err
	}
	return dotenv[key], nil
}

// EnsureDotEnvTemplate creates ~/.opsroute/.env if it does not already exist.
// It reports whether a file was written.
func EnsureDotEnvTemplate() (bool, error) {
	p, err := DotEnvPath()
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(p); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("cannot stat dotenv file %s: %w", p, err)
	}

	body := "" +
		"# Embeddings provider: local (default, offline), openai, ollama, genai\n" +
		"OPSROUTE_EMBEDDINGS_PROVIDER=\n" +
		"OPSROUTE_EMBEDDINGS_MODEL=\n" +
		"OPSROUTE_EMBEDDINGS_API_KEY=\n" +
		"OPSROUTE_EMBEDDINGS_BASE_URL=\n"

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return false, fmt.Errorf("cannot create %s: %w", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		return false, fmt.Errorf("cannot write dotenv template %s: %w", p, err)
	}
	return true, nil
}
