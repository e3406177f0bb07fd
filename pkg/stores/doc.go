// Package stores provides the SQLite persistence layer of the embedded
// process engine. Schema changes are embedded golang-migrate migrations;
// CRUD statements live on Queries so they run the same against the
// database or inside a transaction.
package stores
