package config

import "errors"

var (
	// ErrInvalidConfig wraps every validation problem found in a loaded Config.
	ErrInvalidConfig = errors.New("config: invalid value")
	// ErrLoadConfig wraps failures reading the YAML file or the environment.
	ErrLoadConfig = errors.New("config: load failed")
)
