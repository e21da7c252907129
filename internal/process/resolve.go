package process

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// resolveExecutable locates the server binary. Order: the configured
// active directory, then the newest install under
// <ExecutableDir>/versions, then <ExecutableDir> itself. A version
// found by scanning is promoted to active and the config is persisted,
// so later launches skip the scan.
func (s *Supervisor) resolveExecutable() (string, error) {
	s.resolveMu.Lock()
	defer s.resolveMu.Unlock()

	if dir := s.cfg.ActiveExecutableDir; dir != "" {
		p := filepath.Join(dir, s.exeName)
		if fileExists(p) {
			return p, nil
		}
		s.log.WithField("dir", dir).Warn("active executable missing, rescanning versions")
	}

	if path, dir, version, ok := s.scanVersions(); ok {
		s.cfg.SetActiveExecutable(dir, version)
		if err := s.cfg.Save(""); err != nil {
			s.log.WithError(err).Warn("could not persist active executable")
		}
		s.log.WithFields(logrus.Fields{"version": version, "dir": dir}).Info("promoted server version")
		return path, nil
	}

	p := filepath.Join(s.cfg.ExecutableDir, s.exeName)
	if fileExists(p) {
		return p, nil
	}

	return "", fmt.Errorf("%s not found under %s", s.exeName, s.cfg.ExecutableDir)
}

// scanVersions searches <ExecutableDir>/versions for installed builds.
// Both layouts are supported: versions/<v>/<backend>/<exe> as produced
// by backend-specific release archives, and the flat versions/<v>/<exe>.
// The most recently modified install wins.
func (s *Supervisor) scanVersions() (path, dir, version string, ok bool) {
	root := filepath.Join(s.cfg.ExecutableDir, "versions")
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", "", "", false
	}

	type candidate struct {
		dir     string
		version string
		mod     time.Time
	}
	var cands []candidate

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		vdir := filepath.Join(root, e.Name())
		vinfo, err := e.Info()
		if err != nil {
			continue
		}

		if fileExists(filepath.Join(vdir, s.exeName)) {
			cands = append(cands, candidate{vdir, e.Name(), vinfo.ModTime()})
		}

		subs, err := os.ReadDir(vdir)
		if err != nil {
			continue
		}
		for _, sub := range subs {
			if !sub.IsDir() {
				continue
			}
			bdir := filepath.Join(vdir, sub.Name())
			if !fileExists(filepath.Join(bdir, s.exeName)) {
				continue
			}
			mod := vinfo.ModTime()
			if sinfo, err := sub.Info(); err == nil {
				mod = sinfo.ModTime()
			}
			cands = append(cands, candidate{bdir, e.Name(), mod})
		}
	}

	if len(cands) == 0 {
		return "", "", "", false
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].mod.After(cands[j].mod) })
	best := cands[0]
	return filepath.Join(best.dir, s.exeName), best.dir, best.version, true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
