package transcode

import (
	"fmt"
	"strings"
)

// FFmpeg constants
const (
	// Video codec settings
	VideoCodec  = "libx264"
	VideoPreset = "medium"
	VideoCRF    = "23"

	// Audio codec settings
	AudioCodecAAC    = "aac"
	AudioCodecMP3    = "mp3"
	AudioCodecPCM    = "pcm_s16le"
	MergeAudioRate   = "128k"
	ExtractAudioRate = "192k"

	// Container flags
	FastStartFlag    = "+faststart"
	AvoidNegativeTSV = "make_zero"

	FFmpegCommand = "ffmpeg"
	OverwriteFlag = "-y"
)

// Video container formats accepted by ConvertFormat
const (
	FormatMP4 = "mp4"
	FormatAVI = "avi"
	FormatMKV = "mkv"
)

// Audio formats accepted by ExtractAudio
const (
	FormatMP3 = "mp3"
	FormatAAC = "aac"
	FormatWAV = "wav"
)

// VideoFormats lists the supported container formats
var VideoFormats = []string{FormatMP4, FormatAVI, FormatMKV}

// AudioFormats lists the supported audio formats
var AudioFormats = []string{FormatMP3, FormatAAC, FormatWAV}

// BuildMergeArgs builds the arguments that mux a video and an audio stream
// into one mp4, re-encoding audio to AAC.
func BuildMergeArgs(videoPath, audioPath, outputPath string) []string {
	return []string{
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", AudioCodecAAC,
		"-b:a", MergeAudioRate,
		"-movflags", FastStartFlag,
		"-avoid_negative_ts", AvoidNegativeTSV,
		OverwriteFlag,
		outputPath,
	}
}

// BuildConvertArgs builds the arguments for a container conversion
func BuildConvertArgs(inputPath, outputPath, format string) ([]string, error) {
	args := []string{"-i", inputPath}
	switch strings.ToLower(format) {
	case FormatMP4:
		args = append(args,
			"-c:v", VideoCodec,
			"-c:a", AudioCodecAAC,
			"-crf", VideoCRF,
			"-preset", VideoPreset,
		)
	case FormatAVI:
		args = append(args,
			"-c:v", VideoCodec,
			"-c:a", AudioCodecMP3,
		)
	case FormatMKV:
		args = append(args,
			"-c:v", "copy",
			"-c:a", "copy",
		)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return append(args, OverwriteFlag, outputPath), nil
}

// BuildExtractAudioArgs builds the arguments that drop the video stream and
// encode the audio as format.
func BuildExtractAudioArgs(inputPath, outputPath, format string) ([]string, error) {
	args := []string{"-i", inputPath, "-vn"}
	switch strings.ToLower(format) {
	case FormatMP3:
		args = append(args, "-acodec", AudioCodecMP3, "-ab", ExtractAudioRate)
	case FormatAAC:
		args = append(args, "-acodec", AudioCodecAAC, "-ab", ExtractAudioRate)
	case FormatWAV:
		args = append(args, "-acodec", AudioCodecPCM)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return append(args, OverwriteFlag, outputPath), nil
}
