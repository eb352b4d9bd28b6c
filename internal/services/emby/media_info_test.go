package emby

import "testing"

func TestExtractMediaInfoRequiresVideo(t *testing.T) {
	if ExtractMediaInfo(nil) != nil {
		t.Fatal("expected nil for nil item")
	}
	item := &Item{MediaStreams: []MediaStream{{Type: "Audio", Codec: "aac"}}}
	if ExtractMediaInfo(item) != nil {
		t.Fatal("expected nil without video stream")
	}
}

func TestExtractMediaInfoFallbacks(t *testing.T) {
	item := &Item{
		Name:      "Fight Club",
		Container: "mkv",
		Path:      "/media/movies/Fight Club.mkv",
		Size:      4_000_000_000,
		Bitrate:   12_000_000,
		MediaStreams: []MediaStream{
			{Type: "Video", Codec: "hevc", Width: 3840, Height: 2160, VideoRange: "HDR", VideoRangeType: "HDR10"},
			{Type: "Audio", Codec: "truehd", Channels: 8, Language: "eng"},
			{Type: "Audio", Codec: "ac3", Channels: 6, Language: "chi"},
			{Type: "Subtitle", Codec: "subrip", Language: "chi", DisplayTitle: "Chinese"},
		},
	}
	info := ExtractMediaInfo(item)
	if info == nil {
		t.Fatal("expected media info")
	}
	if info.Video.Title != "Fight Club" {
		t.Fatalf("expected title fallback to item name, got %q", info.Video.Title)
	}
	if info.Video.Bitrate != 12_000_000 {
		t.Fatalf("expected bitrate fallback to item bitrate, got %d", info.Video.Bitrate)
	}
	if info.Video.VideoRange != "HDR10" {
		t.Fatalf("expected range type preferred, got %q", info.Video.VideoRange)
	}
	if len(info.Audio) != 2 || len(info.Subtitles) != 1 {
		t.Fatalf("unexpected stream lists %d audio %d subtitles", len(info.Audio), len(info.Subtitles))
	}
	if info.Container != "mkv" || info.Size != 4_000_000_000 {
		t.Fatalf("unexpected container/size %#v", info)
	}
}
