// Package services talks to the separation backend over HTTP.
//
// # Backend client
//
// [APIService] wraps the plain request/response endpoints: track listing, download,
// deletion and metadata detection. It also builds the URLs the other clients use.
//
// # Upload transport
//
// [Uploader] streams a multipart form to POST /separate. The body is assembled from a
// pre-rendered head, the file itself, and a pre-rendered tail, so the request carries an
// exact Content-Length and transfer progress is measured on the bytes actually read by the
// HTTP client. Progress callbacks are throttled with a [rate.Limiter]; 100 is always delivered.
//
// # Progress stream
//
// [ProgressStreamer] opens GET /progress/{task_id} and decodes server-sent events with
// [Decoder]. Integer data frames are forwarded to a [StreamHandler]; a dropped connection is
// reported once through OnTransportError. Nothing is reported after [ProgressStream.Close].
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrAPIRequest] : non-success status from a plain endpoint
//   - [shared.ErrUpload] : transport failure or non-success status from /separate
//   - [shared.ErrStreamInterrupted] : the progress stream could not be opened
package services
