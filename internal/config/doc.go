// Package config loads the run configuration for the dengue tools.
package config
