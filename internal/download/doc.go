// Package download owns the download queue: an ordered set of items, each
// moving through Pending, Downloading and a terminal status. The byte level
// work is delegated to a Fetcher; the queue only orchestrates and records.
//
// The Downloading status doubles as the per item lock: ExecuteDownload
// refuses an item that is already Downloading, so one item never has two
// fetches in flight while distinct items may run concurrently.
package download
