// Package ui implements an interactive run monitor using bubbletea's Elm architecture.
//
// The TUI walks through three views:
//  1. [ConfirmView] : Catalog size, credentials and remaining quota before anything is dispatched
//  2. [RunView] : Progress bar and the latest outcome messages while the run is in flight
//  3. [ResultView] : Ranked non-CMRA mailboxes with diagnostics, toggling to failed and skipped addresses
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the VerifyEngine, providing non-blocking status reporting during a run.
// Stopping a run cancels dispatch; in-flight lookups finish and the result view shows a partial report.
//
// Keyboard navigation uses vim-style bindings (j/k, y/n, c, f, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
