package model

import (
	"fmt"
	"time"
)

// VideoOwner describes the uploader of a video
type VideoOwner struct {
	Name   string `json:"name"`
	Avatar string `json:"face,omitempty"`
	MID    uint64 `json:"mid"`
}

// VideoPage is a single part of a (possibly multi-part) video
type VideoPage struct {
	CID      uint64 `json:"cid"`
	Page     int    `json:"page"`
	Part     string `json:"part"`
	Duration int    `json:"duration"` // seconds
}

// VideoMetadata is the immutable description of a video fetched from the service.
type VideoMetadata struct {
	BVID        string      `json:"bvid"`
	AID         uint64      `json:"aid"`
	Title       string      `json:"title"`
	Description string      `json:"desc"`
	Thumbnail   string      `json:"pic"`
	Owner       VideoOwner  `json:"owner"`
	Duration    int         `json:"duration"` // seconds
	Pages       []VideoPage `json:"pages"`
}

// ID returns the canonical identifier of the video
func (v *VideoMetadata) ID() string {
	if v.BVID != "" {
		return v.BVID
	}
	if v.AID > 0 {
		return fmt.Sprintf("av%d", v.AID)
	}
	return ""
}

// FirstPageCID returns the CID of the first part, or 0 if none
func (v *VideoMetadata) FirstPageCID() uint64 {
	if len(v.Pages) == 0 {
		return 0
	}
	return v.Pages[0].CID
}

// DurationString returns the duration formatted as hh:mm:ss or mm:ss
func (v *VideoMetadata) DurationString() string {
	d := time.Duration(v.Duration) * time.Second
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// VideoStream is a video-only stream variant
type VideoStream struct {
	Quality     int    `json:"quality"`
	Format      string `json:"format"`
	Codecs      string `json:"codecs,omitempty"`
	Description string `json:"description"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	URL         string `json:"url,omitempty"`
	Size        int64  `json:"filesize,omitempty"`
}

// AudioStream is an audio-only stream variant
type AudioStream struct {
	Quality int    `json:"quality"`
	Format  string `json:"format"`
	Codecs  string `json:"codecs,omitempty"`
	URL     string `json:"url,omitempty"`
	Size    int64  `json:"filesize,omitempty"`
}

// StreamOptions holds all stream variants available for one video part
type StreamOptions struct {
	Video []VideoStream `json:"video_streams"`
	Audio []AudioStream `json:"audio_streams"`
}

// BestVideo returns the highest quality video stream, if any
func (s *StreamOptions) BestVideo() (VideoStream, bool) {
	var best VideoStream
	found := false
	for _, v := range s.Video {
		if !found || v.Quality > best.Quality {
			best = v
			found = true
		}
	}
	return best, found
}

// BestAudio returns the highest quality audio stream, if any
func (s *StreamOptions) BestAudio() (AudioStream, bool) {
	var best AudioStream
	found := false
	for _, a := range s.Audio {
		if !found || a.Quality > best.Quality {
			best = a
			found = true
		}
	}
	return best, found
}

// QualitySelection is the user's chosen video and audio variants.
// Audio is optional; a nil Audio downloads the video stream alone.
type QualitySelection struct {
	Video VideoStream  `json:"video"`
	Audio *AudioStream `json:"audio,omitempty"`
}
