// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional config file. It provides
// type-safe access to the signing key, token lifetime, rate-limit policy and
// remote-store connection settings while keeping those details out of the
// business logic.
package config
