// Package hashring implements the ring index: D independent consistent-
// hashing rings of R virtual positions per node, used to derive the owner
// set of a key. It maps keys to physical nodes while minimizing key movement
// when membership changes. No package moves existing data when the mapping
// changes: entries stay on the nodes that stored them, and only new writes
// follow the new mapping.
package hashring
