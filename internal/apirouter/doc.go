// Package apirouter implements the client-facing API router: the
// client-facing set/get handler that consults the ring index for a key's
// owner tuple, fans the request out to each owner (handling the local
// owner in-process), and aggregates replies within a single deadline.
package apirouter
