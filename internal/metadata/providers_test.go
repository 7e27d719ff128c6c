package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"
	"google.golang.org/api/option"
)

func newTestYouTube(t *testing.T, h http.HandlerFunc) *YouTubeProvider {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p, err := NewYouTubeProvider(context.Background(), "test-key",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return p
}

func TestYouTubeProvider_Fetch(t *testing.T) {
	tcases := []struct {
		name      string
		status    int
		body      string
		expErr    error
		expTitle  string
		expImages int
	}{
		{
			name:   "found",
			status: http.StatusOK,
			body: `{"items":[{"id":"dQw4w9WgXcQ","snippet":{"title":"Never Gonna Give You Up","thumbnails":{
				"default":{"url":"d","width":120,"height":90},
				"high":{"url":"h","width":480,"height":360},
				"maxres":{"url":"m","width":1280,"height":720}}}}]}`,
			expTitle:  "Never Gonna Give You Up",
			expImages: 3,
		},
		{
			name:   "no items",
			status: http.StatusOK,
			body:   `{"items":[]}`,
			expErr: ErrNotFound,
		},
		{
			name:   "not found status",
			status: http.StatusNotFound,
			body:   `{"error":{"code":404,"message":"not found"}}`,
			expErr: ErrNotFound,
		},
		{
			name:   "quota exceeded",
			status: http.StatusForbidden,
			body:   `{"error":{"code":403,"message":"quota exceeded"}}`,
			expErr: ErrProviderUnavailable,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/youtube/v3/videos", r.URL.Path)
				assert.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("id"))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})

			track, err := p.Fetch(context.Background(), Ref{Id: "dQw4w9WgXcQ"})
			if tc.expErr != nil {
				assert.ErrorIs(t, err, tc.expErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expTitle, track.Title)
			assert.Len(t, track.Images, tc.expImages)
		})
	}
}

func TestYouTubeProvider_Search(t *testing.T) {
	p := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/youtube/v3/search", r.URL.Path)
		assert.Equal(t, "rick astley", r.URL.Query().Get("q"))
		assert.Equal(t, "video", r.URL.Query().Get("type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":{"videoId":"dQw4w9WgXcQ"},"snippet":{"title":"Never Gonna Give You Up",
			"thumbnails":{"default":{"url":"d"}}}}]}`))
	})

	results, err := p.Search(context.Background(), "rick astley", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, SearchResult{Id: "dQw4w9WgXcQ", Title: "Never Gonna Give You Up", Thumbnail: "d"}, results[0])
}

func newTestSpotify(t *testing.T, h http.HandlerFunc) *SpotifyProvider {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewSpotifyProviderWithClient(srv.Client(), spotify.WithBaseURL(srv.URL+"/"))
}

func TestSpotifyProvider_Fetch(t *testing.T) {
	tcases := []struct {
		name     string
		ref      Ref
		path     string
		status   int
		body     string
		expErr   error
		expTitle string
	}{
		{
			name:     "track",
			ref:      Ref{Kind: "track", Id: "4uLU6hMCjMI75M1A2tKUQC"},
			path:     "/tracks/4uLU6hMCjMI75M1A2tKUQC",
			status:   http.StatusOK,
			body:     `{"name":"Song","artists":[{"name":"A"},{"name":"B"}],"album":{"images":[{"url":"big","width":640,"height":640},{"url":"small","width":300,"height":300}]}}`,
			expTitle: "Song - A, B",
		},
		{
			name:     "album",
			ref:      Ref{Kind: "album", Id: "1ATL5GLyefJaxhQzSPVrLX"},
			path:     "/albums/1ATL5GLyefJaxhQzSPVrLX",
			status:   http.StatusOK,
			body:     `{"name":"Record","artists":[{"name":"A"}],"images":[{"url":"art","width":640,"height":640}]}`,
			expTitle: "Record - A",
		},
		{
			name:     "artist",
			ref:      Ref{Kind: "artist", Id: "0OdUWJ0sBjDrqHygGUXeCF"},
			path:     "/artists/0OdUWJ0sBjDrqHygGUXeCF",
			status:   http.StatusOK,
			body:     `{"name":"Band","images":[{"url":"art","width":640,"height":640}]}`,
			expTitle: "Band",
		},
		{
			name:   "not found",
			ref:    Ref{Kind: "track", Id: "missing"},
			path:   "/tracks/missing",
			status: http.StatusNotFound,
			body:   `{"error":{"status":404,"message":"Not found."}}`,
			expErr: ErrNotFound,
		},
		{
			name:   "server error",
			ref:    Ref{Kind: "track", Id: "abc"},
			path:   "/tracks/abc",
			status: http.StatusInternalServerError,
			body:   `{"error":{"status":500,"message":"Server error."}}`,
			expErr: ErrProviderUnavailable,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestSpotify(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tc.path, r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})

			track, err := p.Fetch(context.Background(), tc.ref)
			if tc.expErr != nil {
				assert.ErrorIs(t, err, tc.expErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expTitle, track.Title)
			assert.NotEmpty(t, track.Images)
		})
	}
}

func TestSpotifyProvider_UnknownKind(t *testing.T) {
	p := NewSpotifyProviderWithClient(http.DefaultClient)
	_, err := p.Fetch(context.Background(), Ref{Kind: "show", Id: "x"})
	assert.ErrorIs(t, err, ErrInvalidURL)
}
