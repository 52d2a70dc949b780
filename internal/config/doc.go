// Package config defines the application configuration structure and loads
// it from environment variables and optional YAML files using viper.
// All loaded configuration is validated with go-playground/validator before
// the application is allowed to start.
package config
