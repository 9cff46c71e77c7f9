// Package application wires the published configuration registry into the
// inspection API and HTTP server, keeping the main package focused on CLI
// parsing and signal handling.
package application
