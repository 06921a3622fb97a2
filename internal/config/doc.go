// Package config loads and validates bridge configuration.
//
// Configuration comes from three layers, lowest priority first: built-in
// defaults, a TOML file, and ZUBRIDGE_* environment variables. A missing
// file is not an error; the defaults apply. The package also provides an
// fsnotify-backed watcher for live reload of the config file.
package config
