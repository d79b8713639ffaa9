// Package server hosts the Fiber HTTP service in front of the image cache
// manager: request ID middleware, the resolve endpoint that turns a remote
// image URL into a local file reference, and a handler that streams cached
// images by digest. Diagnostics routes live in the routes sub-package so the
// core app stays narrow and accepts explicit dependencies.
package server
