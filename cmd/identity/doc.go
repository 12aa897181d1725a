// Package identity owns user accounts: the user document, its persistence
// boundary (Store) and the Accounts service that creates, authenticates,
// updates and deletes users.
//
// A user document carries its own session registry (digests of the tokens
// issued to it) and an optional normalized avatar image. Stores are
// available for MongoDB, PostgreSQL (one JSONB document per user) and
// memory.
package identity
