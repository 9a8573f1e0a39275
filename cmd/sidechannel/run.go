package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sidechannel-merge/sidechannel/pkg/addrfmt"
	"github.com/sidechannel-merge/sidechannel/pkg/config"
	"github.com/sidechannel-merge/sidechannel/pkg/mapfile"
	"github.com/sidechannel-merge/sidechannel/pkg/merge"
	"github.com/sidechannel-merge/sidechannel/pkg/tracefile"
)

// buildResolver wires the config's MAP file options into an
// addrfmt.SymbolResolver, or returns nil if none were configured. Each
// configured MAP file is matched against images's image table by stem
// name, so the resulting resolver is keyed by the image IDs the trace
// itself uses rather than the position of --config's map-files list.
func buildResolver(cfg *config.Config, images []merge.ImageFileInfo) (addrfmt.SymbolResolver, error) {
	if len(cfg.MapFiles) == 0 && cfg.MapDirectory == "" {
		return nil, nil
	}

	r := mapfile.NewResolver()

	idByStem := make(map[string]int32, len(images))
	for _, img := range images {
		idByStem[stemOf(img.Name)] = img.ID
	}

	for _, path := range cfg.MapFiles {
		imageID, ok := idByStem[stemOf(path)]
		if !ok {
			return nil, fmt.Errorf("map file %s does not match any image in the trace's image table", path)
		}

		if err := r.LoadFile(imageID, path); err != nil {
			return nil, err
		}
	}

	if cfg.MapDirectory != "" {
		if err := r.LoadDirectory(cfg.MapDirectory); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// mergeTraces ingests tracePaths in order into a fresh Context, prefetching
// each next trace's raw bytes with an errgroup while the current one merges
// (spec.md §5's double-buffered I/O overlap). AddTrace itself always runs
// to completion before the next file is touched. Each trace's image table
// prefix (spec.md §6.1) is decoded up front; the first trace's table builds
// the symbol resolver, and every trace's table is validated against it so a
// mismatched trace file fails fast instead of silently misattributing
// addresses.
func mergeTraces(tracePaths []string, cfg *config.Config, logger logrus.FieldLogger) (*merge.Context, error) {
	if len(tracePaths) == 0 {
		resolver, err := buildResolver(cfg, nil)
		if err != nil {
			return nil, fmt.Errorf("loading symbol resolver: %w", err)
		}

		return merge.NewContext(resolver, logger), nil
	}

	buf, images, err := readTrace(tracePaths[0])
	if err != nil {
		return nil, err
	}

	firstImages := images

	resolver, err := buildResolver(cfg, images)
	if err != nil {
		return nil, fmt.Errorf("loading symbol resolver: %w", err)
	}

	ctx := merge.NewContext(resolver, logger)
	eng := merge.NewEngine(ctx)

	for i, path := range tracePaths {
		if !sameImages(firstImages, images) {
			return nil, fmt.Errorf("trace %d (%s) has a different image table than trace 0", i, path)
		}

		var g errgroup.Group

		var nextBuf []byte
		var nextImages []merge.ImageFileInfo
		if i+1 < len(tracePaths) {
			nextPath := tracePaths[i+1]
			g.Go(func() error {
				b, imgs, err := readTrace(nextPath)
				if err != nil {
					return err
				}

				nextBuf, nextImages = b, imgs

				return nil
			})
		}

		r := tracefile.NewReader(bytes.NewReader(buf))
		if err := eng.AddTrace(i, r); err != nil {
			return nil, fmt.Errorf("merging trace %d (%s): %w", i, path, err)
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}

		buf, images = nextBuf, nextImages
	}

	return ctx, nil
}

// readTrace reads one trace file fully and decodes its image-table prefix,
// returning the remaining bytes positioned at the start of the record
// stream.
func readTrace(path string) ([]byte, []merge.ImageFileInfo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading trace file %s: %w", path, err)
	}

	br := bytes.NewReader(raw)

	images, err := tracefile.ReadImageTable(br)
	if err != nil {
		return nil, nil, fmt.Errorf("reading image table of %s: %w", path, err)
	}

	rest, err := io.ReadAll(br)
	if err != nil {
		return nil, nil, fmt.Errorf("reading record stream of %s: %w", path, err)
	}

	return rest, images, nil
}

// sameImages reports whether two image tables describe the same set of
// loaded images, ignoring order.
func sameImages(a, b []merge.ImageFileInfo) bool {
	if len(a) != len(b) {
		return false
	}

	byID := make(map[int32]merge.ImageFileInfo, len(a))
	for _, img := range a {
		byID[img.ID] = img
	}

	for _, img := range b {
		want, ok := byID[img.ID]
		if !ok || want != img {
			return false
		}
	}

	return true
}
