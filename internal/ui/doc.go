// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI brings the whole client into one screen:
//  1. [LibraryView] : Browse the account's instrumentals and start playback
//  2. [UploadView] : Submit a file for separation and follow its progress
//
// Playback is shown by three surfaces at once: the library list marks the active track,
// a compact now-playing bar sits under every view and the visualizer modal ("v") draws the
// live waveform. All three subscribe to the same [playback.Coordinator], so whichever
// surface issues a play request the others follow.
//
// The program itself is the event loop: background work posts messages through a [Bridge]
// (tea.Program.Send), and [Model.Update] hands each one to the coordinator that owns it.
//
// Keyboard navigation uses vim-style bindings with contextual help displayed via charmbracelet/bubbles/help.
package ui
