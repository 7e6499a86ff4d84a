// Package instance keeps a single monitor process per set of state files.
package instance
