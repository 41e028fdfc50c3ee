// Package plugin turns ordered plugin descriptors into initialised bundler
// plugins. Factories are looked up by name in a Registry; a plugin that fails
// its own setup is reported with its message unchanged.
package plugin
