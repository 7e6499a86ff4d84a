// Package sink holds what the event sinks share: the JSON payload describing a
// transition and the rules for turning device IDs into topic segments.
package sink
