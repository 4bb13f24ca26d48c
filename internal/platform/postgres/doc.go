// Package postgres provides the PostgreSQL implementation of the principal
// store defined in the internal/store package, together with the embedded
// schema migrations applied by goose. It handles query execution and mapping
// between domain principals and database rows.
package postgres
