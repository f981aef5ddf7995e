package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"schedlist/internal/aggregate"
	"schedlist/internal/capture"
	appLog "schedlist/internal/log"
	"schedlist/internal/schedule"
)

// Output file names inside a profile directory.
const (
	FullFile     = "full.html"
	EditFile     = "edit.html"
	FilteredFile = "index.html"
	CalendarFile = "calendar.ics"
	PreviewFile  = "preview.png"
)

// DirUploader mirrors a finished profile directory somewhere else.
type DirUploader interface {
	UploadDir(ctx context.Context, localDir, name string) error
}

// Writer publishes profile outputs under OutputDir/<profile>/. Every
// artifact is written to a hidden staging directory first and the staging
// directory replaces the previous one with a rename, so a profile either
// gets a complete new set of files or keeps the old set untouched.
type Writer struct {
	OutputDir    string
	TemplatePath string
	EscapeHTML   bool

	ICal     bool
	Compress bool

	// Capturer and Uploader are optional; their failures are logged and do
	// not fail the profile.
	Capturer capture.Capturer
	Uploader DirUploader
}

type artifact struct {
	name string
	data []byte
}

// Publish implements aggregate.Publisher.
func (w *Writer) Publish(ctx context.Context, out *aggregate.Output) error {
	if err := validName(out.Profile); err != nil {
		return err
	}

	tmpl, err := LoadTemplate(w.TemplatePath, w.EscapeHTML)
	if err != nil {
		return err
	}

	files, err := w.artifacts(tmpl, out)
	if err != nil {
		return err
	}

	final, err := w.replaceDir(ctx, out.Profile, files)
	if err != nil {
		return err
	}
	appLog.Info("profile published", "profile", out.Profile, "dir", final, "files", len(files))

	if w.Uploader != nil {
		if err := w.Uploader.UploadDir(ctx, final, out.Profile); err != nil {
			appLog.Error("profile upload failed", err, "profile", out.Profile)
		}
	}
	return nil
}

func (w *Writer) artifacts(tmpl *Template, out *aggregate.Output) ([]artifact, error) {
	files := []artifact{
		{name: FullFile, data: []byte(tmpl.Render(out.Views.Full))},
		{name: EditFile, data: []byte(tmpl.Render(out.Views.Edit))},
		{name: FilteredFile, data: []byte(tmpl.Render(out.Views.Filtered))},
	}
	if w.ICal {
		ics := schedule.EncodeICS(out.Profile, out.Activities, out.Filters, out.Generated)
		files = append(files, artifact{name: CalendarFile, data: []byte(ics)})
	}
	if w.Compress {
		for _, f := range files {
			br, err := Compress(f.data)
			if err != nil {
				return nil, fmt.Errorf("compress %s: %w", f.name, err)
			}
			files = append(files, artifact{name: f.name + ".br", data: br})
		}
	}
	return files, nil
}

func (w *Writer) replaceDir(ctx context.Context, name string, files []artifact) (string, error) {
	if err := os.MkdirAll(w.OutputDir, 0o755); err != nil {
		return "", err
	}
	final := filepath.Join(w.OutputDir, name)

	tmp, err := os.MkdirTemp(w.OutputDir, "."+name+"-*.tmp")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)

	for _, f := range files {
		if err := os.WriteFile(filepath.Join(tmp, f.name), f.data, 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	if err := os.Chmod(tmp, 0o755); err != nil {
		return "", err
	}

	if w.Capturer != nil {
		w.capturePreview(ctx, name, tmp)
	}

	var old string
	if _, err := os.Stat(final); err == nil {
		old = filepath.Join(w.OutputDir, "."+name+"-old-"+strconv.FormatInt(time.Now().UnixNano(), 36))
		if err := os.Rename(final, old); err != nil {
			return "", fmt.Errorf("move previous output aside: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	if err := os.Rename(tmp, final); err != nil {
		if old != "" {
			if rerr := os.Rename(old, final); rerr != nil {
				appLog.Error("restore previous output failed", rerr, "profile", name)
			}
		}
		return "", fmt.Errorf("install output: %w", err)
	}
	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			appLog.Error("remove previous output failed", err, "profile", name)
		}
	}
	return final, nil
}

func (w *Writer) capturePreview(ctx context.Context, name, dir string) {
	u, err := capture.FileURL(filepath.Join(dir, FilteredFile))
	if err != nil {
		appLog.Error("preview url failed", err, "profile", name)
		return
	}
	opts := capture.Options{URL: u, OutputPath: filepath.Join(dir, PreviewFile)}
	if err := w.Capturer.Capture(ctx, opts); err != nil {
		appLog.Error("preview capture failed", err, "profile", name)
		return
	}
	appLog.Debug("preview captured", "profile", name)
}

// Compress returns the brotli encoding of b at best compression.
func Compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	bw := brotli.NewWriterLevel(&buf, brotli.BestCompression)
	if _, err := bw.Write(b); err != nil {
		return nil, err
	}
	if err := bw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func validName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid profile name %q", name)
	}
	return nil
}
