package config

import (
	"errors"
	"fmt"
	"maps"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	ErrNilPointer    = errors.New("config: nil pointer provided")
	ErrParsingConfig = errors.New("config: failed to parse environment variables")
	ErrReadingFile   = errors.New("config: failed to read file")
)

// LoadEnv loads environment variables from one or more .env files.
// Without arguments it loads ./.env if present. Later files win.
func LoadEnv(filenames ...string) error {
	if len(filenames) == 0 {
		return godotenv.Load()
	}
	merged := make(map[string]string)
	for _, filename := range filenames {
		fileEnv, err := godotenv.Read(filename)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrReadingFile, err)
		}
		maps.Copy(merged, fileEnv)
	}
	for key, value := range merged {
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Load parses environment variables into v based on its env tags. A
// ./.env file, if present, is loaded first so local overrides work
// without exporting anything.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	_ = godotenv.Load()
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure, for configurations
// the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}

// LoadFile populates v from a YAML file, then applies environment
// variables on top so the environment always wins.
func LoadFile[T any](path string, v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReadingFile, err)
	}
	if err := yaml.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrReadingFile, err)
	}
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}
