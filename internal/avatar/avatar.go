package avatar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Service caches downscaled JPEG copies of provider avatar URLs on disk.
// Outbound fetches are rate limited and deduplicated per URL so a burst of
// requests for the same fresh avatar costs one download.
type Service struct {
	dir     string
	maxW    int
	client  *http.Client
	limiter *rate.Limiter
	group   singleflight.Group
}

func NewService(dir string, maxW, rps, burst int) *Service {
	if maxW <= 0 {
		maxW = 128
	}
	if rps <= 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = 2
	}
	return &Service{
		dir:     dir,
		maxW:    maxW,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Thumb returns the path of the cached thumbnail for pictureURL, fetching
// and resizing it on first use.
func (s *Service) Thumb(ctx context.Context, pictureURL string) (string, error) {
	sum := sha256.Sum256([]byte(pictureURL))
	key := hex.EncodeToString(sum[:16])
	path := filepath.Join(s.dir, key+".jpg")

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	_, err, _ := s.group.Do(key, func() (any, error) {
		if _, err := os.Stat(path); err == nil {
			return nil, nil
		}
		return nil, s.fetch(ctx, pictureURL, path)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func (s *Service) fetch(ctx context.Context, pictureURL, path string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pictureURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("avatar fetch status %d", resp.StatusCode)
	}

	im, err := imaging.Decode(resp.Body)
	if err != nil {
		return err
	}
	var out image.Image = im
	if im.Bounds().Dx() > s.maxW {
		out = imaging.Resize(im, s.maxW, 0, imaging.Lanczos)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	return imaging.Save(out, path, imaging.JPEGQuality(85))
}
