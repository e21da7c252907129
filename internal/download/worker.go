package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/malanthrax/Arandu-maxi/internal/archive"
	"github.com/malanthrax/Arandu-maxi/internal/events"
	"github.com/malanthrax/Arandu-maxi/internal/httpclient"
)

// errCancelled signals cooperative cancellation inside the worker.
var errCancelled = errors.New("download cancelled by user")

// Options configures the download manager.
type Options struct {
	// HTTP configures the streaming HTTP client.
	HTTP httpclient.Options

	// Events receives progress and completion events. Default: Discard.
	Events events.Publisher

	// Logger receives diagnostic messages.
	Logger logrus.FieldLogger

	// PollInterval is the sleep between pause/cancel checks while a job
	// is paused. Default: 500ms.
	PollInterval time.Duration

	// EmitInterval throttles progress events. Default: 500ms.
	EmitInterval time.Duration
}

// Manager owns the job table and spawns one worker goroutine per
// download. All control operations return immediately.
type Manager struct {
	table  *Table
	client *httpclient.Client
	events events.Publisher
	log    logrus.FieldLogger
	poll   time.Duration
	emit   time.Duration
}

// NewManager creates a download manager.
func NewManager(opts Options) *Manager {
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.EmitInterval <= 0 {
		opts.EmitInterval = defaultEmitInterval
	}
	return &Manager{
		table:  NewTable(),
		client: httpclient.NewClient(opts.HTTP),
		events: opts.Events,
		log:    opts.Logger,
		poll:   opts.PollInterval,
		emit:   opts.EmitInterval,
	}
}

// Start registers a download job and detaches its worker. It returns
// the job id immediately; progress is observed via Status and events.
func (m *Manager) Start(spec Spec) (string, error) {
	if spec.BaseURL == "" {
		return "", errors.New("download: base URL is required")
	}
	if spec.DestinationDir == "" {
		return "", errors.New("download: destination directory is required")
	}

	dest := spec.DestinationDir
	if spec.Subfolder != "" {
		dest = filepath.Join(dest, spec.Subfolder)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("create destination: %w", err)
	}

	files := spec.Files
	if len(files) == 0 {
		files = []string{filenameFromURL(spec.BaseURL)}
	}

	id := generateID(files[0])
	st := &Status{
		ID:          id,
		State:       StateStarting,
		SourceURL:   spec.BaseURL,
		Destination: dest,
		Files:       append([]string(nil), files...),
		TotalFiles:  len(files),
		StartTime:   time.Now(),
		Message:     "Starting download from " + spec.BaseURL,
	}
	m.table.add(id, st)

	go m.run(id, spec, dest, files)

	return id, nil
}

// Status returns a snapshot of one job.
func (m *Manager) Status(id string) (Status, error) { return m.table.Get(id) }

// List returns snapshots of all jobs, newest first.
func (m *Manager) List() []Status { return m.table.List() }

// Pause pauses a downloading job.
func (m *Manager) Pause(id string) error { return m.table.Pause(id) }

// Resume resumes a paused job.
func (m *Manager) Resume(id string) error { return m.table.Resume(id) }

// Cancel requests cooperative cancellation of a job.
func (m *Manager) Cancel(id string) error { return m.table.Cancel(id) }

// ClearHistory drops terminal jobs from the table.
func (m *Manager) ClearHistory() { m.table.ClearHistory() }

// run drives one job through its file list in order.
func (m *Manager) run(id string, spec Spec, dest string, files []string) {
	log := m.log.WithField("id", id)

	for i, file := range files {
		if m.table.cancelled(id) {
			m.finishCancelled(id, "")
			return
		}
		if !m.waitWhilePaused(id) {
			m.finishCancelled(id, "")
			return
		}

		name := filepath.Base(filepath.FromSlash(file))
		finalPath := filepath.Join(dest, name)
		tempPath := finalPath + PartialSuffix

		m.table.update(id, func(st *Status) {
			st.CurrentFile = file
			st.State = StateDownloading
		})

		// Idempotent re-entry: a file already at its destination is
		// counted complete without any network I/O.
		if _, err := os.Stat(finalPath); err == nil {
			log.WithField("file", name).Info("file already present, skipping")
			m.completeFile(id, i, len(files), spec.BaseURL)
			continue
		}

		fileURL := resolveFileURL(spec, file)
		err := m.downloadFile(id, i, len(files), fileURL, name, tempPath, finalPath, spec.Headers, log)
		if err != nil {
			if errors.Is(err, errCancelled) {
				m.finishCancelled(id, tempPath)
			} else {
				// The partial artifact is deliberately left behind;
				// the startup sweep removes it on next boot.
				m.fail(id, err)
			}
			return
		}

		if spec.AutoExtract && archive.IsZip(name) {
			m.extract(id, finalPath, dest, log)
		}

		m.completeFile(id, i, len(files), spec.BaseURL)
	}

	m.events.Publish(events.Event{Type: events.TypeDownloadComplete, ID: id})
	log.Info("download completed")
}

// downloadFile streams one file into its temp artifact and renames it
// into place. The returned error is errCancelled when the job's
// cancellation flag was observed mid-transfer.
func (m *Manager) downloadFile(id string, index, totalFiles int, fileURL, name, tempPath, finalPath string, headers map[string]string, log logrus.FieldLogger) error {
	resp, err := m.client.Get(context.Background(), fileURL, headers)
	if err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()

	total := resp.ContentLength
	m.table.update(id, func(st *Status) {
		st.TotalBytes = total
		st.DownloadedBytes = 0
		st.Speed = 0
	})

	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	gate := newProgressGate(m.emit)
	fileStart := time.Now()
	var downloaded int64
	buf := make([]byte, 64*1024)

	for {
		if m.table.cancelled(id) {
			out.Close()
			return errCancelled
		}
		// Pausing does not close the stream: the connection idles while
		// we sleep, and the next Read continues at the same offset.
		if !m.waitWhilePaused(id) {
			out.Close()
			return errCancelled
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return fmt.Errorf("write %s: %w", name, werr)
			}
			downloaded += int64(n)

			reported := downloaded
			if total > 0 && reported > total {
				reported = total
			}
			percent := overallPercent(index, totalFiles, reported, total)
			speed := instantSpeed(downloaded, fileStart)
			m.table.update(id, func(st *Status) {
				st.DownloadedBytes = reported
				st.Speed = speed
				st.ElapsedTime = time.Since(st.StartTime) - st.TotalPausedTime
				st.Progress = percent
			})
			if gate.allow(time.Now(), percent) {
				m.publishProgress(id)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			return fmt.Errorf("read %s: %w", name, rerr)
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("finalize %s: %w", name, err)
	}

	log.WithFields(logrus.Fields{
		"file": name,
		"size": humanize.Bytes(uint64(downloaded)),
	}).Info("file downloaded")

	return nil
}

// extract unpacks a downloaded zip and deletes the archive on success.
// Extraction failure after a successful download is a secondary
// message, not a job failure.
func (m *Manager) extract(id, zipPath, dest string, log logrus.FieldLogger) {
	m.table.update(id, func(st *Status) {
		st.State = StateExtracting
		st.Message = "Extracting downloaded file..."
	})
	m.publishProgress(id)

	err := archive.ExtractZip(context.Background(), zipPath, dest, func(e archive.Entry) {
		m.events.Publish(events.Event{
			Type: events.TypeExtractionProgress,
			ID:   id,
			Payload: ExtractionProgress{
				DownloadID:     id,
				Progress:       (e.Index + 1) * 100 / e.Total,
				TotalFiles:     e.Total,
				CompletedFiles: e.Index + 1,
				CurrentFile:    e.Name,
			},
		})
	})
	if err != nil {
		log.WithError(err).Warn("extraction failed")
		m.table.update(id, func(st *Status) {
			st.Message = fmt.Sprintf("Downloaded but extraction failed: %v", err)
		})
		return
	}

	os.Remove(zipPath)
}

// waitWhilePaused blocks in a sleep-and-recheck loop while the job is
// paused. It holds no locks while waiting. Returns false when the job
// was cancelled or removed.
func (m *Manager) waitWhilePaused(id string) bool {
	for {
		if m.table.cancelled(id) {
			return false
		}
		state, ok := m.table.state(id)
		if !ok {
			return false
		}
		if state != StatePaused {
			return true
		}
		time.Sleep(m.poll)
	}
}

// completeFile records one finished file. The last file's count bump
// and the Completed transition are a single update, so no snapshot ever
// shows a full file count on a still-running job.
func (m *Manager) completeFile(id string, index, total int, sourceURL string) {
	m.table.update(id, func(st *Status) {
		st.FilesCompleted = index + 1
		st.Progress = (index + 1) * 100 / total
		if index+1 == total {
			st.State = StateCompleted
			st.Message = "Download completed from " + sourceURL
		}
	})
	m.publishProgress(id)
}

func (m *Manager) finishCancelled(id, tempPath string) {
	if tempPath != "" {
		os.Remove(tempPath)
	}
	m.table.update(id, func(st *Status) {
		if st.State.Terminal() {
			return
		}
		st.State = StateCancelled
		st.Message = "Download cancelled by user"
	})
	m.publishProgress(id)
	m.log.WithField("id", id).Info("download cancelled")
}

func (m *Manager) fail(id string, err error) {
	m.log.WithField("id", id).WithError(err).Error("download failed")
	m.table.update(id, func(st *Status) {
		if st.State.Terminal() {
			return
		}
		st.State = StateFailed
		st.Error = err.Error()
		st.Message = "Download failed"
	})
	m.publishProgress(id)
}

func (m *Manager) publishProgress(id string) {
	st, err := m.table.Get(id)
	if err != nil {
		return
	}
	m.events.Publish(events.Event{Type: events.TypeDownloadProgress, ID: id, Payload: st})
}

// resolveFileURL builds the request URL for one file of the job.
func resolveFileURL(spec Spec, file string) string {
	if len(spec.Files) == 0 {
		// Single file downloaded directly from the base URL.
		return spec.BaseURL
	}
	return strings.TrimRight(spec.BaseURL, "/") + "/" + strings.TrimLeft(file, "/")
}

// filenameFromURL derives a filename from the URL path.
func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "download"
	}
	return name
}

// generateID builds a job id from the start time and first filename.
func generateID(firstFile string) string {
	return fmt.Sprintf("download_%d_%s", time.Now().UnixMilli(), sanitizeFilename(filepath.Base(firstFile)))
}

// sanitizeFilename replaces path and shell metacharacters.
func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
