// Package config builds the front-end BuildConfiguration: plugin descriptors,
// path aliases, dev-server networking, the build cache directory and test
// harness settings. Literal defaults can be overlaid from a YAML file, a dotenv
// file, BUILDCFG_ environment variables and CLI flags, with precedence:
// CLI flags > environment > dotenv > YAML > defaults. Relative paths are
// resolved against the project root and the result is validated before it is
// returned.
package config
