package metadata

import (
	"errors"
	"regexp"
	"strings"

	"github.com/npezzotti/go-jukebox/internal/database"
)

var (
	ErrInvalidURL          = errors.New("invalid url")
	ErrNotFound            = errors.New("media not found")
	ErrProviderUnavailable = errors.New("metadata provider unavailable")
)

var (
	youTubeRe = regexp.MustCompile(
		`^(?:https?://)?(?:www\.)?(?:m\.)?(?:youtube\.com/(?:watch\?(?:.*&)?v=|embed/|v/)|youtu\.be/)([a-zA-Z0-9_-]{11})(?:[?&]\S+)?$`,
	)
	// watch URLs that carry a playlist are not single tracks
	youTubeListRe = regexp.MustCompile(`youtube\.com/watch\?.*\blist=`)
	spotifyRe     = regexp.MustCompile(`open\.spotify\.com/(track|playlist|album|artist)/([a-zA-Z0-9]+)`)
)

// Ref identifies a media item on a platform. Kind is only set for Spotify,
// where it is one of track, playlist, album or artist.
type Ref struct {
	Platform database.Platform
	Kind     string
	Id       string
}

// Parse recognises the YouTube and Spotify URL shapes. Any other input
// yields ErrInvalidURL.
func Parse(rawURL string) (Ref, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Ref{}, ErrInvalidURL
	}

	if m := youTubeRe.FindStringSubmatch(rawURL); m != nil && !youTubeListRe.MatchString(rawURL) {
		return Ref{Platform: database.PlatformYouTube, Id: m[1]}, nil
	}

	if m := spotifyRe.FindStringSubmatch(rawURL); m != nil {
		return Ref{Platform: database.PlatformSpotify, Kind: m[1], Id: m[2]}, nil
	}

	return Ref{}, ErrInvalidURL
}

// Classify returns the platform and the platform-specific id of rawURL.
func Classify(rawURL string) (database.Platform, string, error) {
	ref, err := Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	return ref.Platform, ref.Id, nil
}
