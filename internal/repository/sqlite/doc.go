// Package sqlite stores the monitor state and the subscriber registry in a single
// SQLite database. It is an alternative to the JSON file backends for deployments
// that prefer one transactional file.
package sqlite
