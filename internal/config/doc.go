// Package config provides environment-based configuration.
//
// Loads an optional .env file (godotenv), maps environment variables to the
// Config struct and validates required fields and numeric ranges.
package config
