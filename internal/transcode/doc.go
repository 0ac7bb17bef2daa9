// Package transcode wraps the ffmpeg executable: merging DASH video and
// audio, converting containers and extracting audio tracks.
package transcode
