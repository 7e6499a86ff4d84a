// Package state implements persistence for the monitor state.
//
// The FileRepository stores and loads the state as a versioned JSON document and
// exposes a Repository interface that the scheduler depends on. A SQLite backed
// implementation lives in the sqlite package.
package state
