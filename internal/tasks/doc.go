// Package tasks turns a file upload into a tracked background job.
//
// # Coordinator
//
// [Coordinator] owns a single [UploadTask] and walks it through
//
//	Idle -> Uploading -> {Failed | AwaitingProcessing} -> Processing -> {Succeeded | Failed}
//
// The upload runs through a [services.Transport]; once the backend accepts the file the
// coordinator opens a [services.Streamer] bound to the same task id. Both report back by
// posting messages ([TransferMsg], [UploadDoneMsg], [StreamOpenedMsg], [StreamValueMsg],
// [StreamErrorMsg]) to a [loop.Dispatcher]. The owner of the loop feeds them to
// [Coordinator.Handle], which drops any message whose task id or expected state is stale.
//
// Submitting again or calling [Coordinator.Cancel] aborts the in-flight request and closes
// the stream before anything else happens, so a previous task can never write into the new one.
//
// # Progress Reporting
//
// [DisplayPercent] merges transfer and processing progress into one value: transfer fills
// the range below the floor (60 by default), processing fills the rest. The coordinator
// keeps a high-water mark on top so subscribers never see the bar move backwards.
//
// Subscribers receive a [ProgressUpdate] after every transition, called on the loop goroutine.
//
// # Downloads
//
// [BulkDownload] saves many tracks with an errgroup worker pool and a rate limiter,
// reporting [DownloadUpdate] values with non-blocking sends.
package tasks
