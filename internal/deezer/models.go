// Package deezer is the Provider-D upstream client: authenticated JSON-RPC
// calls (C3), the shared token lifecycle (C4), and the catalogue resolver
// that turns a track id into metadata and a short-lived media URL (C5).
package deezer

import (
	"encoding/json"
	"fmt"
)

// FlexibleID accepts a JSON value that Provider-D sometimes emits as a
// string and sometimes as a bare number, across different endpoints for
// the same logical id field.
type FlexibleID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleID(n.String())
		return nil
	}

	return fmt.Errorf("deezer: FlexibleID must be a string or number, got %s", data)
}

// String returns the id as a plain string.
func (f FlexibleID) String() string {
	return string(f)
}

// Artist is a contributor or primary artist on a track or album.
type Artist struct {
	ID            FlexibleID `json:"ART_ID"`
	Name          string     `json:"ART_NAME"`
	IsPlaceholder bool       `json:"ARTIST_IS_DUMMY"`
	PictureRef    string     `json:"ART_PICTURE"`
}

// TrackPage is the resolved metadata for one track, as returned by
// deezer.pageTrack's results.DATA.
type TrackPage struct {
	ID              FlexibleID `json:"SNG_ID"`
	Title           string     `json:"SNG_TITLE"`
	Artists         []Artist   `json:"ARTISTS"`
	AlbumID         FlexibleID `json:"ALB_ID"`
	AlbumTitle      string     `json:"ALB_TITLE"`
	TrackToken      string     `json:"TRACK_TOKEN"`
	ArtworkRef      string     `json:"ART_PICTURE"`
	DurationSeconds FlexibleID `json:"DURATION"`
}

// AlbumHeader is an album's own metadata, separate from its track listing.
type AlbumHeader struct {
	PrimaryArtistID FlexibleID `json:"ART_ID"`
	AlbumID         FlexibleID `json:"ALB_ID"`
	Artists         []Artist   `json:"ARTISTS"`
	AlbumTitle      string     `json:"ALB_TITLE"`
	ArtworkRef      string     `json:"ALB_PICTURE"`
}

// AlbumSongs wraps an album's track listing as Provider-D nests it.
type AlbumSongs struct {
	Data []TrackPage `json:"data"`
}

// Album is the resolved metadata for one album, as returned by
// deezer.pageAlbum's results.
type Album struct {
	Header AlbumHeader `json:"DATA"`
	Songs  AlbumSongs  `json:"SONGS"`
}
