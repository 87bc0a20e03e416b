package realdebrid

import (
	"context"
	"errors"
	"fmt"
	"github.com/goccy/go-json"
	"github.com/magnetdl/magnetdl/internal/ratelimit"
	"github.com/magnetdl/magnetdl/pkg/debrid/types"
	"golang.org/x/sync/errgroup"
	"net/http"
	gourl "net/url"
	"sync"
)

func (r *RealDebrid) unrestrict(ctx context.Context, link string) (string, error) {
	resp, err := r.call(ctx, http.MethodPost, "/unrestrict/link", gourl.Values{
		"link": {link},
	})
	if err != nil {
		return "", err
	}
	var data UnrestrictResponse
	if err := json.Unmarshal(resp, &data); err != nil {
		return "", fmt.Errorf("decoding unrestrict response: %w", err)
	}
	if data.Download == "" {
		return "", fmt.Errorf("unrestrict: %w (download)", ErrMissingField)
	}
	return data.Download, nil
}

// UnrestrictLinks resolves every link to a direct URL, concurrently, under a
// bucket that lives only for this call. Links that fail are dropped with a
// warning, so the result may be shorter than the input and is unordered.
func (r *RealDebrid) UnrestrictLinks(ctx context.Context, links []types.ResolvedLink) ([]types.ResolvedLink, error) {
	if len(links) == 0 {
		return nil, ErrNoLinks
	}

	bucket, err := ratelimit.New(r.unrestrictBurst, r.unrestrictRate)
	if err != nil {
		return nil, fmt.Errorf("unrestrict: %w", err)
	}
	defer bucket.Stop()

	var (
		mu       sync.Mutex
		resolved = make([]types.ResolvedLink, 0, len(links))
	)
	g, gCtx := errgroup.WithContext(ctx)
	for _, link := range links {
		g.Go(func() error {
			if err := bucket.Consume(gCtx); err != nil {
				if !errors.Is(err, context.Canceled) {
					r.logger.Warn().Err(err).Msgf("Skipped %s", link.Link)
				}
				return nil
			}
			url, err := r.unrestrict(gCtx, link.Link)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					r.logger.Warn().Err(err).Msgf("Failed to unrestrict %s", link.Link)
				}
				return nil
			}
			link.URL = url
			mu.Lock()
			resolved = append(resolved, link)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return resolved, err
	}
	if dropped := len(links) - len(resolved); dropped > 0 {
		r.logger.Warn().Msgf("%d of %d links could not be unrestricted", dropped, len(links))
	}
	return resolved, nil
}
