package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// SpotifyProvider looks tracks, albums, playlists and artists up through
// the Spotify Web API using the client credentials flow.
type SpotifyProvider struct {
	client *spotify.Client
}

func NewSpotifyProvider(ctx context.Context, clientId, clientSecret string) *SpotifyProvider {
	cfg := &clientcredentials.Config{
		ClientID:     clientId,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return NewSpotifyProviderWithClient(cfg.Client(ctx))
}

// NewSpotifyProviderWithClient builds a provider around an already
// authenticated http client.
func NewSpotifyProviderWithClient(httpClient *http.Client, opts ...spotify.ClientOption) *SpotifyProvider {
	return &SpotifyProvider{client: spotify.New(httpClient, opts...)}
}

func (p *SpotifyProvider) Fetch(ctx context.Context, ref Ref) (Track, error) {
	id := spotify.ID(ref.Id)

	switch ref.Kind {
	case "", "track":
		t, err := p.client.GetTrack(ctx, id)
		if err != nil {
			return Track{}, classifySpotifyErr(err)
		}
		return Track{
			Title:  withArtists(t.Name, t.Artists),
			Images: spotifyImages(t.Album.Images),
		}, nil
	case "album":
		a, err := p.client.GetAlbum(ctx, id)
		if err != nil {
			return Track{}, classifySpotifyErr(err)
		}
		return Track{
			Title:  withArtists(a.Name, a.Artists),
			Images: spotifyImages(a.Images),
		}, nil
	case "playlist":
		pl, err := p.client.GetPlaylist(ctx, id)
		if err != nil {
			return Track{}, classifySpotifyErr(err)
		}
		return Track{Title: pl.Name, Images: spotifyImages(pl.Images)}, nil
	case "artist":
		ar, err := p.client.GetArtist(ctx, id)
		if err != nil {
			return Track{}, classifySpotifyErr(err)
		}
		return Track{Title: ar.Name, Images: spotifyImages(ar.Images)}, nil
	default:
		return Track{}, fmt.Errorf("%w: spotify kind %q", ErrInvalidURL, ref.Kind)
	}
}

func withArtists(name string, artists []spotify.SimpleArtist) string {
	if len(artists) == 0 {
		return name
	}

	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return name + " - " + strings.Join(names, ", ")
}

func spotifyImages(in []spotify.Image) []Image {
	images := make([]Image, 0, len(in))
	for _, img := range in {
		if img.URL == "" {
			continue
		}
		images = append(images, Image{URL: img.URL, Width: int(img.Width)})
	}
	return images
}

func classifySpotifyErr(err error) error {
	var spErr spotify.Error
	if errors.As(err, &spErr) && (spErr.Status == http.StatusNotFound || spErr.Status == http.StatusBadRequest) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
