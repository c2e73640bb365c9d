// Package api contains the HTTP handlers for the batch recognition API and
// the mapping from internal errors to safe client responses.
package api
