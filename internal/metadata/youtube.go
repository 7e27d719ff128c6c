package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YouTubeProvider looks videos up through the YouTube Data API.
type YouTubeProvider struct {
	svc *youtube.Service
}

func NewYouTubeProvider(ctx context.Context, apiKey string, opts ...option.ClientOption) (*YouTubeProvider, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &YouTubeProvider{svc: svc}, nil
}

func (p *YouTubeProvider) Fetch(ctx context.Context, ref Ref) (Track, error) {
	resp, err := p.svc.Videos.List([]string{"snippet"}).Id(ref.Id).Context(ctx).Do()
	if err != nil {
		return Track{}, classifyGoogleErr(err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return Track{}, fmt.Errorf("%w: video %s", ErrNotFound, ref.Id)
	}

	snippet := resp.Items[0].Snippet
	return Track{
		Title:  snippet.Title,
		Images: thumbnailImages(snippet.Thumbnails),
	}, nil
}

// SearchResult is one entry of a YouTube video search.
type SearchResult struct {
	Id        string `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

// Search returns up to limit videos matching query.
func (p *YouTubeProvider) Search(ctx context.Context, query string, limit int64) ([]SearchResult, error) {
	resp, err := p.svc.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		MaxResults(limit).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyGoogleErr(err)
	}

	results := make([]SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Snippet == nil {
			continue
		}
		res := SearchResult{Id: item.Id.VideoId, Title: item.Snippet.Title}
		if th := item.Snippet.Thumbnails; th != nil && th.Default != nil {
			res.Thumbnail = th.Default.Url
		}
		results = append(results, res)
	}
	return results, nil
}

func thumbnailImages(th *youtube.ThumbnailDetails) []Image {
	if th == nil {
		return nil
	}

	var images []Image
	for _, t := range []*youtube.Thumbnail{th.Default, th.Medium, th.High, th.Standard, th.Maxres} {
		if t == nil || t.Url == "" {
			continue
		}
		images = append(images, Image{URL: t.Url, Width: int(t.Width)})
	}
	return images
}

func classifyGoogleErr(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
