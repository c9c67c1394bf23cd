package archive

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentcoord/coordbus/internal/domain/reservation"
)

// ProjectStats is one project's archive footprint, for the retention/quota
// report. It counts every file under the project's working
// tree, including .git, since that's what actually occupies disk.
type ProjectStats struct {
	Files int
	Bytes int64
}

// Stats walks a project's archive directory and totals file count and
// bytes. It never deletes or modifies anything.
func (a *Archive) Stats(slug string) (ProjectStats, error) {
	dir := filepath.Join(a.root, "projects", slug)
	var stats ProjectStats
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		stats.Files++
		stats.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return ProjectStats{}, fmt.Errorf("walking archive for %s: %w", slug, err)
	}
	return stats, nil
}

// ListReservationSidecars reads every file_reservations/<id>.json sidecar
// for a project directly off disk, for the guard binary, which checks
// candidate paths against active exclusive reservations without touching
// the Catalog. Missing directory (no reservations ever written) is not an
// error.
func (a *Archive) ListReservationSidecars(slug string) ([]reservation.FileReservation, error) {
	dir := filepath.Join(a.root, "projects", slug, "file_reservations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading file_reservations for %s: %w", slug, err)
	}

	reservations := make([]reservation.FileReservation, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		var res reservation.FileReservation
		if err := json.Unmarshal(data, &res); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", entry.Name(), err)
		}
		reservations = append(reservations, res)
	}
	return reservations, nil
}
