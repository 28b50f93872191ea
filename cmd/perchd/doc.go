// Package main hosts the perchd entrypoint and command graph.
//
// The Cobra-based command tree starts the capture daemon, inspects recorded
// visits and component health straight from the SQLite store, and scaffolds
// configuration. It centralizes configuration resolution and structured
// logging setup so subcommands can focus on user experience instead of
// wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
