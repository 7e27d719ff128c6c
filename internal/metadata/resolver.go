package metadata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/npezzotti/go-jukebox/internal/database"
)

const (
	DefaultTitle = "Can't find video"
	DefaultImage = "https://cdn.pixabay.com/photo/2024/02/28/07/42/european-shorthair-8601492_640.jpg"
)

type Image struct {
	URL   string
	Width int
}

// Track is what a provider knows about a media item.
type Track struct {
	Title  string
	Images []Image
}

type Provider interface {
	Fetch(ctx context.Context, ref Ref) (Track, error)
}

// Descriptor is a resolved media item ready to be stored as a stream.
type Descriptor struct {
	Platform    database.Platform
	Type        database.StreamType
	ExtractedId string
	Url         string
	Title       string
	SmallImg    string
	BigImg      string
}

type Resolver struct {
	log       *log.Logger
	providers map[database.Platform]Provider
	timeout   time.Duration
}

func NewResolver(logger *log.Logger, timeout time.Duration) *Resolver {
	return &Resolver{
		log:       logger,
		providers: make(map[database.Platform]Provider),
		timeout:   timeout,
	}
}

func (r *Resolver) Register(platform database.Platform, p Provider) {
	r.providers[platform] = p
}

// Resolve classifies url and fetches its title and artwork. A provider that
// cannot be reached, fails or exceeds the timeout yields
// ErrProviderUnavailable; an unknown item or one without artwork yields
// ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, url string) (Descriptor, error) {
	ref, err := Parse(url)
	if err != nil {
		return Descriptor{}, err
	}

	p, ok := r.providers[ref.Platform]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: no provider for %s", ErrProviderUnavailable, ref.Platform)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	track, err := p.Fetch(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Descriptor{}, err
		}
		r.log.Printf("fetch %s %s: %v", ref.Platform, ref.Id, err)
		if errors.Is(err, ErrProviderUnavailable) {
			return Descriptor{}, err
		}
		return Descriptor{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if len(track.Images) == 0 {
		return Descriptor{}, fmt.Errorf("%w: no artwork for %s", ErrNotFound, ref.Id)
	}

	small, big := pickImages(track.Images)

	title := track.Title
	if title == "" {
		title = DefaultTitle
	}

	desc := newDescriptor(ref, url)
	desc.Title = title
	desc.SmallImg = small
	desc.BigImg = big

	return desc, nil
}

func newDescriptor(ref Ref, url string) Descriptor {
	desc := Descriptor{
		Platform:    ref.Platform,
		Type:        database.StreamTypeVideo,
		ExtractedId: ref.Id,
		Url:         url,
	}
	if ref.Platform == database.PlatformSpotify {
		desc.Type = database.StreamTypeAudio
	}
	return desc
}

// Placeholder describes ref with the default title and artwork, for callers
// that accept an item whose metadata could not be fetched.
func Placeholder(ref Ref, url string) Descriptor {
	desc := newDescriptor(ref, url)
	desc.Title = DefaultTitle
	desc.SmallImg = DefaultImage
	desc.BigImg = DefaultImage
	return desc
}

// pickImages returns the second largest and the largest image by width. With
// a single image both are the same.
func pickImages(images []Image) (small, big string) {
	sorted := slices.Clone(images)
	slices.SortStableFunc(sorted, func(a, b Image) int { return a.Width - b.Width })

	big = sorted[len(sorted)-1].URL
	small = big
	if len(sorted) > 1 {
		small = sorted[len(sorted)-2].URL
	}
	return small, big
}
