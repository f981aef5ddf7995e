package publish

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedlist/internal/aggregate"
	"schedlist/internal/capture"
	"schedlist/internal/model"
	"schedlist/internal/schedule"
)

func TestTemplate_substitution(t *testing.T) {
	tmpl, err := NewTemplate("<style>p {{ margin: 0 }}</style><pre>{}</pre>", true)
	require.NoError(t, err)

	assert.Equal(t, "<style>p { margin: 0 }</style><pre>a &lt;b&gt; &amp; c</pre>", tmpl.Render("a <b> & c"))

	raw, err := NewTemplate("<pre>{}</pre>", false)
	require.NoError(t, err)
	assert.Equal(t, "<pre>a <b></pre>", raw.Render("a <b>"))
}

func TestTemplate_bodyBracesAreNotInterpreted(t *testing.T) {
	tmpl, err := NewTemplate("[{}]", false)
	require.NoError(t, err)

	assert.Equal(t, `[{"a":1} {}]`, tmpl.Render(`{"a":1} {}`))
}

func TestTemplate_invalid(t *testing.T) {
	for _, text := range []string{"{name}", "{} {}", "a } b", "trailing {"} {
		_, err := NewTemplate(text, false)
		assert.ErrorIs(t, err, ErrTemplate, text)
	}

	tmpl, err := NewTemplate("no placeholder", false)
	require.NoError(t, err)
	assert.Equal(t, "no placeholder", tmpl.Render("ignored"))
}

func TestCompress_roundTrip(t *testing.T) {
	in := []byte(strings.Repeat("09:00-11:00  Intro\n", 50))

	br, err := Compress(in)
	require.NoError(t, err)
	assert.Less(t, len(br), len(in))

	out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(br)))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

type fakeCapturer struct {
	calls []capture.Options
	err   error
}

func (f *fakeCapturer) Capture(_ context.Context, opts capture.Options) error {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(opts.OutputPath, []byte("png"), 0o644)
}

type fakeUploader struct {
	dirs []string
	err  error
}

func (f *fakeUploader) UploadDir(_ context.Context, localDir, name string) error {
	f.dirs = append(f.dirs, name+"="+localDir)
	return f.err
}

func testOutput(name string) *aggregate.Output {
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	acts := []model.Activity{{
		ID:    "ev1",
		Name:  "Intro",
		Start: time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 9, 2, 11, 0, 0, 0, time.UTC),
	}}
	return &aggregate.Output{
		Profile:    name,
		Activities: acts,
		Filters:    schedule.IDSet{},
		Views:      schedule.RenderViews(acts, schedule.IDSet{}, now),
		Generated:  now,
	}
}

func newWriter(t *testing.T) *Writer {
	t.Helper()
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(tmplPath, []byte("<pre>{}</pre>"), 0o600))
	return &Writer{
		OutputDir:    filepath.Join(dir, "html"),
		TemplatePath: tmplPath,
		EscapeHTML:   true,
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestWriter_publishWritesAllViews(t *testing.T) {
	w := newWriter(t)
	w.ICal = true
	w.Compress = true
	capt := &fakeCapturer{}
	up := &fakeUploader{}
	w.Capturer = capt
	w.Uploader = up

	out := testOutput("cs")
	require.NoError(t, w.Publish(context.Background(), out))

	dir := filepath.Join(w.OutputDir, "cs")
	assert.Equal(t, "<pre>"+out.Views.Full+"</pre>", readFile(t, filepath.Join(dir, FullFile)))
	assert.Equal(t, "<pre>"+out.Views.Edit+"</pre>", readFile(t, filepath.Join(dir, EditFile)))
	assert.Equal(t, "<pre>"+out.Views.Filtered+"</pre>", readFile(t, filepath.Join(dir, FilteredFile)))
	assert.Contains(t, readFile(t, filepath.Join(dir, CalendarFile)), "BEGIN:VCALENDAR")
	assert.Equal(t, "png", readFile(t, filepath.Join(dir, PreviewFile)))

	for _, name := range []string{FullFile, EditFile, FilteredFile, CalendarFile} {
		br, err := os.ReadFile(filepath.Join(dir, name+".br"))
		require.NoError(t, err)
		plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(br)))
		require.NoError(t, err)
		assert.Equal(t, readFile(t, filepath.Join(dir, name)), string(plain))
	}

	require.Len(t, capt.calls, 1)
	assert.True(t, strings.HasPrefix(capt.calls[0].URL, "file://"))
	assert.Equal(t, []string{"cs=" + dir}, up.dirs)

	// Nothing but the profile directory is left behind.
	entries, err := os.ReadDir(w.OutputDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cs", entries[0].Name())
}

func TestWriter_replacesPreviousOutput(t *testing.T) {
	w := newWriter(t)
	dir := filepath.Join(w.OutputDir, "cs")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.txt"), []byte("old"), 0o644))

	require.NoError(t, w.Publish(context.Background(), testOutput("cs")))

	assert.NoFileExists(t, filepath.Join(dir, "stale.txt"))
	assert.FileExists(t, filepath.Join(dir, FilteredFile))
	assert.NoFileExists(t, filepath.Join(dir, CalendarFile))
	assert.NoFileExists(t, filepath.Join(dir, FullFile+".br"))
}

func TestWriter_failureKeepsPreviousOutput(t *testing.T) {
	w := newWriter(t)
	dir := filepath.Join(w.OutputDir, "cs")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FilteredFile), []byte("previous"), 0o644))

	require.NoError(t, os.WriteFile(w.TemplatePath, []byte("<pre>{broken}</pre>"), 0o600))

	err := w.Publish(context.Background(), testOutput("cs"))
	assert.ErrorIs(t, err, ErrTemplate)
	assert.Equal(t, "previous", readFile(t, filepath.Join(dir, FilteredFile)))
}

func TestWriter_optionalStepsDoNotFailProfile(t *testing.T) {
	w := newWriter(t)
	w.Capturer = &fakeCapturer{err: errors.New("no chromium")}
	w.Uploader = &fakeUploader{err: errors.New("dial error")}

	require.NoError(t, w.Publish(context.Background(), testOutput("cs")))

	dir := filepath.Join(w.OutputDir, "cs")
	assert.FileExists(t, filepath.Join(dir, FilteredFile))
	assert.NoFileExists(t, filepath.Join(dir, PreviewFile))
}

func TestWriter_rejectsUnsafeNames(t *testing.T) {
	w := newWriter(t)
	for _, name := range []string{"", ".hidden", "../escape", `a\b`} {
		err := w.Publish(context.Background(), testOutput(name))
		assert.Error(t, err, name)
	}
}

func TestNewUploader_validation(t *testing.T) {
	_, err := NewUploader(SFTPConfig{})
	assert.Error(t, err)

	_, err = NewUploader(SFTPConfig{Host: "h", User: "u", Pass: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host key")

	u, err := NewUploader(SFTPConfig{Host: "h", User: "u", Pass: "p", InsecureIgnoreHostKey: true})
	require.NoError(t, err)
	assert.Equal(t, 22, u.cfg.Port)
	assert.Equal(t, "/", u.cfg.RemoteDir)
}

func TestUploadDir_missingLocalDir(t *testing.T) {
	u, err := NewUploader(SFTPConfig{Host: "127.0.0.1", User: "u", Pass: "p", InsecureIgnoreHostKey: true})
	require.NoError(t, err)

	err = u.UploadDir(context.Background(), filepath.Join(t.TempDir(), "missing"), "cs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read local dir")
}
