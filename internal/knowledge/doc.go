// Package knowledge persists the append-only history of pipeline runs. Both
// the in-memory store used for development and the MySQL store used in
// production satisfy the same Store interface.
package knowledge
