// Package ui contains the Fyne desktop interface. It turns user actions
// into calls on the login controller, the download queue and the export
// pipeline, and renders their state. All UI strings go through
// Localization.
package ui
