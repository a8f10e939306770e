// Package config loads strongly typed configuration structs from environment
// variables.
//
// Structs describe their variables with caarlos0/env tags:
//
//	type Config struct {
//	    CookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"sid"`
//	    Expiration time.Duration `env:"SESSION_EXPIRATION" envDefault:"1440s"`
//	}
//
// Load reads a ".env" file from the working directory on first use (a missing
// file is not an error) and then parses the process environment into the
// target. LoadEnv loads explicit files instead; later files override earlier
// ones.
//
//	var cfg session.Config
//	config.MustLoad(&cfg)
package config
