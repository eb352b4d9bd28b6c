package emby

import (
	"strconv"
	"strings"
)

// Item is an Emby library item (movie, series or episode).
type Item struct {
	ID                string            `json:"Id"`
	Name              string            `json:"Name"`
	Type              string            `json:"Type"`
	Overview          string            `json:"Overview,omitempty"`
	ProviderIDs       map[string]string `json:"ProviderIds,omitempty"`
	ProductionYear    int               `json:"ProductionYear,omitempty"`
	PremiereDate      string            `json:"PremiereDate,omitempty"`
	DateCreated       string            `json:"DateCreated,omitempty"`
	CommunityRating   float64           `json:"CommunityRating,omitempty"`
	IndexNumber       *int              `json:"IndexNumber,omitempty"`
	ParentIndexNumber *int              `json:"ParentIndexNumber,omitempty"`
	Container         string            `json:"Container,omitempty"`
	Path              string            `json:"Path,omitempty"`
	Size              int64             `json:"Size,omitempty"`
	Bitrate           int64             `json:"Bitrate,omitempty"`
	Width             int               `json:"Width,omitempty"`
	Height            int               `json:"Height,omitempty"`
	MediaStreams      []MediaStream     `json:"MediaStreams,omitempty"`
}

// ProviderID returns the first non-empty provider id among the supplied key spellings.
func (i Item) ProviderID(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(i.ProviderIDs[key]); value != "" {
			return value
		}
	}
	return ""
}

// Year returns ProductionYear, falling back to the first four characters of PremiereDate.
func (i Item) Year() string {
	if i.ProductionYear > 0 {
		return strconv.Itoa(i.ProductionYear)
	}
	if len(i.PremiereDate) >= 4 {
		return i.PremiereDate[:4]
	}
	return ""
}

// MediaStream describes a video, audio or subtitle stream of an item.
type MediaStream struct {
	Type             string  `json:"Type"`
	Codec            string  `json:"Codec,omitempty"`
	DisplayTitle     string  `json:"DisplayTitle,omitempty"`
	Language         string  `json:"Language,omitempty"`
	Profile          string  `json:"Profile,omitempty"`
	Level            float64 `json:"Level,omitempty"`
	Width            int     `json:"Width,omitempty"`
	Height           int     `json:"Height,omitempty"`
	AspectRatio      string  `json:"AspectRatio,omitempty"`
	IsInterlaced     bool    `json:"IsInterlaced,omitempty"`
	AverageFrameRate float64 `json:"AverageFrameRate,omitempty"`
	BitRate          int64   `json:"BitRate,omitempty"`
	VideoRange       string  `json:"VideoRange,omitempty"`
	VideoRangeType   string  `json:"VideoRangeType,omitempty"`
	BitDepth         int     `json:"BitDepth,omitempty"`
	PixelFormat      string  `json:"PixelFormat,omitempty"`
	RefFrames        int     `json:"RefFrames,omitempty"`
	IsHDR            *bool   `json:"IsHdr,omitempty"`
	ColorSpace       string  `json:"ColorSpace,omitempty"`
	Channels         int     `json:"Channels,omitempty"`
	SampleRate       int     `json:"SampleRate,omitempty"`
}

// UserPolicy carries the permission flags of an Emby user.
type UserPolicy struct {
	IsAdministrator bool `json:"IsAdministrator"`
}

// User is an Emby account.
type User struct {
	ID     string     `json:"Id"`
	Name   string     `json:"Name"`
	Policy UserPolicy `json:"Policy"`
}

// AuthResult is the AuthenticateByName response.
type AuthResult struct {
	User        User   `json:"User"`
	AccessToken string `json:"AccessToken"`
	ServerID    string `json:"ServerId"`
}

type itemsResponse struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}
