// Package bilibili is the client for the video service's web API: video
// info, DASH stream resolution, QR code login and the user profile. It also
// implements the stream fetcher used by the download queue.
//
// All API requests share one rate limiter. Stream downloads go through an
// SSRF guarded HTTP client since their URLs come from API responses.
package bilibili
