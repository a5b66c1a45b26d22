// Package models defines the data shapes exchanged with the separation backend.
//
//   - [Track] : a processed instrumental listed for an account
//   - [Metadata] : title/artist/genre sent with an upload or returned by detection
//   - [Listing] : the GET /files response body
//   - [Upload] : a submitted separation task as recorded in local history
//
// [Track.Ref] is the stable key used to tell tracks apart across UI surfaces and playback.
package models
