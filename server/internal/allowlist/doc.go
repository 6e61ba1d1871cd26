// Package allowlist holds the set of user ids beacon-server accepts updates
// for and streams to. The set is replaced wholesale on config reload;
// readers never block.
package allowlist
