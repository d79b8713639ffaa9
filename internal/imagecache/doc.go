// Package imagecache maps remote image URLs to local files. The first
// resolve of a URL downloads the bytes into the disk store under the SHA-256
// digest of the URL and records the entry in a JSON index that lives next to
// the images; later resolves reuse the file until the retention window
// elapses. Expired entries are swept on every resolve rather than by a
// background timer.
//
// Every failure (directory, index, download, delete) is logged and degrades
// to returning the original URL, so callers can always fall back to loading
// the image over the network.
package imagecache
