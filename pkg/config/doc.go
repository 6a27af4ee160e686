// Package config loads SDK configuration from the environment and from
// files. It wraps github.com/caarlos0/env for struct parsing,
// github.com/joho/godotenv for .env files, and gopkg.in/yaml.v3 for
// YAML files, so consumers can populate the same tagged struct from
// whichever source their deployment uses. Precedence is file first,
// then environment on top.
package config
