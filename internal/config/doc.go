// Package config defines the packaging settings used by organ-packager and
// provides helpers to load, validate and save them in YAML format.
//
// The Config type holds the build mode, the archive name and the source and
// output directories.
package config
