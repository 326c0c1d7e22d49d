// Package ui implements a terminal task monitor using bubbletea's Elm architecture.
//
// The monitor lists every task in the registry with its status, counters and detail line, and
// draws a progress bar for the selected task. Tasks are refreshed from the registry's
// subscription channel, so progress made by batches running in the same process shows up live.
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
//
// Keyboard bindings (j/k, p pause, r resume, c cancel, d remove, x clear completed, q quit) are shown
// through charmbracelet/bubbles/help.
package ui
