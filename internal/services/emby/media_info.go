package emby

// VideoInfo describes the primary video stream of an item.
type VideoInfo struct {
	Title        string  `json:"title,omitempty"`
	Codec        string  `json:"codec,omitempty"`
	Profile      string  `json:"profile,omitempty"`
	Level        float64 `json:"level,omitempty"`
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	AspectRatio  string  `json:"aspect_ratio,omitempty"`
	IsInterlaced bool    `json:"is_interlaced"`
	FrameRate    float64 `json:"frame_rate,omitempty"`
	Bitrate      int64   `json:"bitrate,omitempty"`
	VideoRange   string  `json:"video_range,omitempty"`
	BitDepth     int     `json:"bit_depth,omitempty"`
	PixelFormat  string  `json:"pixel_format,omitempty"`
	RefFrames    int     `json:"ref_frames,omitempty"`
	HDR          *bool   `json:"hdr,omitempty"`
	ColorSpace   string  `json:"color_space,omitempty"`
}

// AudioInfo describes one audio stream.
type AudioInfo struct {
	Title      string `json:"title,omitempty"`
	Codec      string `json:"codec,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Bitrate    int64  `json:"bitrate,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Language   string `json:"language,omitempty"`
}

// SubtitleInfo describes one subtitle stream.
type SubtitleInfo struct {
	Title    string `json:"title,omitempty"`
	Language string `json:"language,omitempty"`
	Codec    string `json:"codec,omitempty"`
}

// MediaInfo summarises the technical properties of a library file.
type MediaInfo struct {
	Video     VideoInfo      `json:"video"`
	Audio     []AudioInfo    `json:"audio"`
	Subtitles []SubtitleInfo `json:"subtitles"`
	Container string         `json:"container,omitempty"`
	Path      string         `json:"path,omitempty"`
	Size      int64          `json:"size,omitempty"`
}

// ExtractMediaInfo builds a MediaInfo from item details. It returns nil when the
// item carries no video stream.
func ExtractMediaInfo(item *Item) *MediaInfo {
	if item == nil || len(item.MediaStreams) == 0 {
		return nil
	}
	var video *MediaStream
	for i := range item.MediaStreams {
		if item.MediaStreams[i].Type == "Video" {
			video = &item.MediaStreams[i]
			break
		}
	}
	if video == nil {
		return nil
	}

	info := &MediaInfo{
		Video: VideoInfo{
			Title:        firstNonEmpty(video.DisplayTitle, item.Name),
			Codec:        video.Codec,
			Profile:      video.Profile,
			Level:        video.Level,
			Width:        video.Width,
			Height:       video.Height,
			AspectRatio:  video.AspectRatio,
			IsInterlaced: video.IsInterlaced,
			FrameRate:    video.AverageFrameRate,
			Bitrate:      video.BitRate,
			VideoRange:   firstNonEmpty(video.VideoRangeType, video.VideoRange),
			BitDepth:     video.BitDepth,
			PixelFormat:  video.PixelFormat,
			RefFrames:    video.RefFrames,
			HDR:          video.IsHDR,
			ColorSpace:   video.ColorSpace,
		},
		Audio:     []AudioInfo{},
		Subtitles: []SubtitleInfo{},
		Container: item.Container,
		Path:      item.Path,
		Size:      item.Size,
	}
	if info.Video.Bitrate == 0 {
		info.Video.Bitrate = item.Bitrate
	}

	for _, stream := range item.MediaStreams {
		switch stream.Type {
		case "Audio":
			info.Audio = append(info.Audio, AudioInfo{
				Title:      stream.DisplayTitle,
				Codec:      stream.Codec,
				Channels:   stream.Channels,
				Bitrate:    stream.BitRate,
				SampleRate: stream.SampleRate,
				Language:   stream.Language,
			})
		case "Subtitle":
			info.Subtitles = append(info.Subtitles, SubtitleInfo{
				Title:    stream.DisplayTitle,
				Language: stream.Language,
				Codec:    stream.Codec,
			})
		}
	}
	return info
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
