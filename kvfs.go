// Package kvfs contains the core types of the virtual filesystem: canonical
// path values, capabilities, the polymorphic Node interface every storage
// backend implements, and the error kinds surfaced at its boundary.
//
// Concrete backends live in the filesystem and devices packages, the mount
// table in mount, and capability-checked handles in handle.
package kvfs
