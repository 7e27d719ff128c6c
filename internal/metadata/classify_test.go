package metadata

import (
	"testing"

	"github.com/npezzotti/go-jukebox/internal/database"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tcases := []struct {
		name        string
		url         string
		expPlatform database.Platform
		expId       string
		expErr      error
	}{
		{name: "watch url", url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", expPlatform: database.PlatformYouTube, expId: "dQw4w9WgXcQ"},
		{name: "watch url without scheme", url: "youtube.com/watch?v=dQw4w9WgXcQ", expPlatform: database.PlatformYouTube, expId: "dQw4w9WgXcQ"},
		{name: "mobile watch url", url: "https://m.youtube.com/watch?v=dQw4w9WgXcQ", expPlatform: database.PlatformYouTube, expId: "dQw4w9WgXcQ"},
		{name: "watch url with extra params", url: "https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ&t=42", expPlatform: database.PlatformYouTube, expId: "dQw4w9WgXcQ"},
		{name: "short url", url: "https://youtu.be/dQw4w9WgXcQ?si=abc", expPlatform: database.PlatformYouTube, expId: "dQw4w9WgXcQ"},
		{name: "embed url", url: "https://www.youtube.com/embed/dQw4w9WgXcQ", expPlatform: database.PlatformYouTube, expId: "dQw4w9WgXcQ"},
		{name: "v url", url: "https://www.youtube.com/v/dQw4w9WgXcQ", expPlatform: database.PlatformYouTube, expId: "dQw4w9WgXcQ"},
		{name: "watch url with playlist", url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PL1234", expErr: ErrInvalidURL},
		{name: "watch url with playlist first", url: "https://www.youtube.com/watch?list=PL1234&v=dQw4w9WgXcQ", expErr: ErrInvalidURL},
		{name: "short id", url: "https://youtu.be/dQw4w9W", expErr: ErrInvalidURL},
		{name: "spotify track", url: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", expPlatform: database.PlatformSpotify, expId: "4uLU6hMCjMI75M1A2tKUQC"},
		{name: "spotify album", url: "https://open.spotify.com/album/1ATL5GLyefJaxhQzSPVrLX?si=x", expPlatform: database.PlatformSpotify, expId: "1ATL5GLyefJaxhQzSPVrLX"},
		{name: "spotify show", url: "https://open.spotify.com/show/1ATL5GLyefJaxhQzSPVrLX", expErr: ErrInvalidURL},
		{name: "other host", url: "https://vimeo.com/12345", expErr: ErrInvalidURL},
		{name: "empty", url: "   ", expErr: ErrInvalidURL},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			platform, id, err := Classify(tc.url)
			if tc.expErr != nil {
				assert.ErrorIs(t, err, tc.expErr)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.expPlatform, platform)
			assert.Equal(t, tc.expId, id)
		})
	}
}

func TestParse_SpotifyKind(t *testing.T) {
	ref, err := Parse("https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M")
	assert.NoError(t, err)
	assert.Equal(t, "playlist", ref.Kind)
	assert.Equal(t, "37i9dQZF1DXcBWIGoYBM5M", ref.Id)
}
