package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Lookup resolves a setting by name. The boolean reports whether the key is
// defined at all, so an empty value can be told apart from an absent one.
type Lookup interface {
	Lookup(key string) (string, bool)
}

// LookupFunc adapts a plain function to the Lookup interface.
type LookupFunc func(key string) (string, bool)

func (f LookupFunc) Lookup(key string) (string, bool) {
	return f(key)
}

// Env returns a Lookup backed by the live process environment.
func Env() Lookup {
	return LookupFunc(os.LookupEnv)
}

// Map is a fixed set of settings, used for .env contents and test fixtures.
type Map map[string]string

func (m Map) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

type chain []Lookup

// Chain consults each Lookup in order and returns the first defined value.
func Chain(lookups ...Lookup) Lookup {
	out := make(chain, 0, len(lookups))
	for _, l := range lookups {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

func (c chain) Lookup(key string) (string, bool) {
	for _, l := range c {
		if v, ok := l.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

// FindDotEnv locates name relative to the working directory, walking up the
// directory tree. It returns name unchanged when nothing is found so callers
// can still report the path they looked for.
func FindDotEnv(name string) string {
	if filepath.IsAbs(name) {
		return name
	}

	dir, err := os.Getwd()
	if err != nil {
		return name
	}

	for {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return name
}

// DotEnv reads a .env file into a Map without touching the process
// environment. A missing file is not an error: it is logged as a warning and
// an empty Map is returned.
func DotEnv(path string, logger *zap.Logger) (Map, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn(".env file not found, relying on process environment", zap.String("path", path))
			return Map{}, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}

	logger.Debug("loaded env file", zap.String("path", path), zap.Int("keys", len(values)))
	return Map(values), nil
}
