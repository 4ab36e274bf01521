// Package internal holds shared metadata for the yamltr application.
package internal

// Version is the current application version.
const Version = "0.1.0"
