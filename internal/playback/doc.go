// Package playback keeps at most one decoded track alive and arbitrates play requests
// from every surface that can start audio.
//
// A [Resource] owns one decoder ([Media]) and the [Waveform] tap bound to it; both are
// released together by destroy, which stops the output device first. The [Coordinator]
// is the only thing that creates or destroys resources. A request for a different track
// destroys the live resource before the next one is constructed, so there is never a
// moment with two decoders open.
//
// Loading runs off-loop through a [Loader] and reports back with [LoadedMsg]. Each message
// carries the resource id it was started for; a load that resolves after its resource was
// destroyed has its media closed and changes nothing.
package playback
