package download

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// CleanLeftovers removes partial download artifacts left behind by a
// crash or forced exit. It walks each directory recursively and deletes
// regular files whose name ends in exactly the reserved suffix,
// case-insensitively. "model.gguf.download.txt" does not match and is
// kept. Missing directories are skipped; per-file errors are logged and
// the sweep continues. Returns the number of files removed.
func CleanLeftovers(dirs []string, log logrus.FieldLogger) (int, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	removed := 0
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}

		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.WithError(err).WithField("path", path).Warn("skipping unreadable entry")
				return nil
			}
			if d.IsDir() || !isPartial(d.Name()) {
				return nil
			}
			if err := os.Remove(path); err != nil {
				log.WithError(err).WithField("path", path).Warn("failed to remove partial download")
				return nil
			}
			log.WithField("path", path).Info("removed leftover partial download")
			removed++
			return nil
		})
		if err != nil {
			return removed, err
		}
	}

	return removed, nil
}

// isPartial reports whether name carries the reserved partial suffix.
func isPartial(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), PartialSuffix)
}
