// Package config loads, normalizes, and validates perchd configuration.
//
// Configuration comes from a TOML file with sane defaults for everything
// except the camera source and detector endpoint. Secrets (the vision API
// key) may be supplied via the environment or a .env file; when the vision
// classifier is enabled and no key is present, loading fails rather than
// falling back to an embedded credential.
package config
