// Package application provides application initialization and dependency wiring.
// It loads the initial configuration snapshot and builds the config API router,
// the HTTP server and the optional polling watcher, keeping the main package
// focused on CLI parsing and orchestration.
package application
