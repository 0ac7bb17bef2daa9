package ui

import (
	"fmt"
	"slices"
	"sort"

	"github.com/ytget/cilicili/internal/bilibili"
	"github.com/ytget/cilicili/internal/config"
	"github.com/ytget/cilicili/internal/model"
)

// File size formatting constants
const (
	FileSizeUnit  = 1024
	FileSizeUnits = "KMGTPE"
)

// formatFileSize formats file size in bytes to human readable format
func formatFileSize(bytes int64) string {
	if bytes < FileSizeUnit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(FileSizeUnit), 0
	for n := bytes / FileSizeUnit; n >= FileSizeUnit; n /= FileSizeUnit {
		div *= FileSizeUnit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), FileSizeUnits[exp])
}

// qualityChoice backs the two quality selects
type qualityChoice struct {
	video       []model.VideoStream
	audio       []model.AudioStream
	videoLabels []string
	audioLabels []string
}

// newQualityChoice sorts the streams best first and labels them
func newQualityChoice(opts *model.StreamOptions) *qualityChoice {
	qc := &qualityChoice{}
	if opts == nil {
		return qc
	}
	qc.video = append(qc.video, opts.Video...)
	qc.audio = append(qc.audio, opts.Audio...)
	sort.SliceStable(qc.video, func(i, j int) bool { return qc.video[i].Quality > qc.video[j].Quality })
	sort.SliceStable(qc.audio, func(i, j int) bool { return qc.audio[i].Quality > qc.audio[j].Quality })

	for _, v := range qc.video {
		qc.videoLabels = append(qc.videoLabels, videoLabel(v))
	}
	for _, a := range qc.audio {
		qc.audioLabels = append(qc.audioLabels, audioLabel(a))
	}
	return qc
}

func videoLabel(v model.VideoStream) string {
	label := v.Description
	if v.Codecs != "" {
		label += MiddleDotSeparator + v.Codecs
	}
	if v.Size > 0 {
		label += MiddleDotSeparator + "~" + formatFileSize(v.Size)
	}
	return label
}

func audioLabel(a model.AudioStream) string {
	label := bilibili.AudioLabel(a.Quality)
	if a.Size > 0 {
		label += MiddleDotSeparator + "~" + formatFileSize(a.Size)
	}
	return label
}

// preferredVideo returns the index of the stream matching preset
func (qc *qualityChoice) preferredVideo(preset config.QualityPreset) int {
	if len(qc.video) == 0 {
		return -1
	}
	switch preset {
	case config.QualityLow:
		return len(qc.video) - 1
	case config.QualityMedium:
		for i, v := range qc.video {
			if v.Quality <= mediumQualityCap {
				return i
			}
		}
		return len(qc.video) - 1
	default:
		return 0
	}
}

// selection builds the quality selection for the chosen labels. An unknown
// audio label, including the "no audio" entry, leaves Audio nil.
func (qc *qualityChoice) selection(videoLabel, audioLabel string) (*model.QualitySelection, bool) {
	vi := slices.Index(qc.videoLabels, videoLabel)
	if vi < 0 {
		return nil, false
	}
	sel := &model.QualitySelection{Video: qc.video[vi]}
	if ai := slices.Index(qc.audioLabels, audioLabel); ai >= 0 {
		a := qc.audio[ai]
		sel.Audio = &a
	}
	return sel, true
}
