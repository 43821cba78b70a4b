// Package archive is a client for the Internet Archive's public HTTP API.
//
// It covers the three endpoints this project needs:
//   - advancedsearch.php for full-text search over audio items
//   - /metadata/<identifier> for the per-item file listing
//   - /download/<identifier>/<file> URL construction for direct playback
//
// Responses from the search index use loosely-typed JSON (creator may be a
// string or a list of strings), so the decoding types here normalize those
// shapes rather than mirroring the upstream schema exactly.
package archive
