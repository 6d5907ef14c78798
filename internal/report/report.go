// Package report derives the summary of the stored countries and renders it
// as a PNG in the cache directory. Only the latest image is kept.
package report

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/CountrySync/internal/database"
)

// ImageName is the file name of the rendered summary inside the cache dir.
const ImageName = "summary.png"

// TopN is the number of countries listed in the summary.
const TopN = 5

// Summary is the read-only view of the store the report is built from.
type Summary struct {
	Total           int
	LastRefreshedAt time.Time
	Top             []database.GDPEntry
}

// Generator builds and writes the summary image.
type Generator struct {
	store    database.Store
	cacheDir string
	width    int
	height   int
	logger   *logrus.Logger
}

// NewGenerator creates a generator writing width x height images to cacheDir.
func NewGenerator(store database.Store, cacheDir string, width, height int, logger *logrus.Logger) *Generator {
	return &Generator{
		store:    store,
		cacheDir: cacheDir,
		width:    width,
		height:   height,
		logger:   logger,
	}
}

// ImagePath returns the well-known location of the rendered image.
func (g *Generator) ImagePath() string {
	return filepath.Join(g.cacheDir, ImageName)
}

// Summarize queries the store. ts is used as the last-refreshed time when the
// store has none.
func (g *Generator) Summarize(ctx context.Context, ts time.Time) (*Summary, error) {
	status, err := g.store.GetStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}
	s := &Summary{Total: status.TotalCountries, LastRefreshedAt: ts.UTC()}
	if status.LastRefreshedAt != nil {
		s.LastRefreshedAt = status.LastRefreshedAt.UTC()
	}
	if s.Total == 0 {
		return s, nil
	}

	top, err := g.store.TopByGDP(ctx, TopN)
	if err != nil {
		return nil, fmt.Errorf("reading top countries: %w", err)
	}
	s.Top = top
	return s, nil
}

// Generate renders the current summary and overwrites the cached image.
// An empty store renders nothing and is not an error.
func (g *Generator) Generate(ctx context.Context, ts time.Time) error {
	s, err := g.Summarize(ctx, ts)
	if err != nil {
		return err
	}
	if s.Total == 0 {
		g.logger.Debug("no countries stored, skipping summary image")
		return nil
	}

	img := Render(s, g.width, g.height)
	if err := g.write(img); err != nil {
		return err
	}

	g.logger.WithFields(logrus.Fields{
		"path":  g.ImagePath(),
		"count": s.Total,
	}).Info("summary image written")
	return nil
}

// write encodes to a temp file and renames it over the target so readers
// never see a partial image.
func (g *Generator) write(img image.Image) error {
	if err := os.MkdirAll(g.cacheDir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(g.cacheDir, "summary-*.png")
	if err != nil {
		return fmt.Errorf("creating temp image: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := imaging.Encode(tmp, img, imaging.PNG); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp image: %w", err)
	}
	if err := os.Rename(tmp.Name(), g.ImagePath()); err != nil {
		return fmt.Errorf("replacing summary image: %w", err)
	}
	return nil
}
