// Package export runs the post-download file operations: copying finished
// videos to an export folder, format conversion, audio extraction and
// revealing files in the system file manager. Every operation returns a
// Result carrying a message ready for display.
package export
