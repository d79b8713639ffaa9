// Package cache defines the disk-backed store responsible for translating
// cache locators into StoragePath/<namespace>/<name> files. The store exposes
// read/write primitives with safe semantics (temp file + rename) and surfaces
// file info (size, modtime) so the image cache manager can decide hits,
// misses and expiry without duplicating filesystem logic.
package cache
