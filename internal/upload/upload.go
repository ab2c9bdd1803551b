// Package upload stores uploaded documents on disk and registers them as
// processes.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"

	"github.com/pbaille/fieldmap/internal/domain"
	"github.com/pbaille/fieldmap/internal/store"
)

// URLPrefix is the path under which stored files are served
const URLPrefix = "/uploads/"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)

// SanitizeName replaces every character outside [a-zA-Z0-9.-_] with '_'
func SanitizeName(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// PageInfo describes the pages of a stored PDF
type PageInfo struct {
	Count int
	Sizes []domain.PageSize
}

// Inspect reads page count and page sizes from the PDF at path
func Inspect(path string) (*PageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(f, conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}

	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("page dimensions: %w", err)
	}

	info := &PageInfo{Count: ctx.PageCount, Sizes: make([]domain.PageSize, len(dims))}
	for i, d := range dims {
		info.Sizes[i] = domain.PageSize{Width: d.Width, Height: d.Height}
	}
	return info, nil
}

// Service writes uploads into a directory and records them in the store
type Service struct {
	dir   string
	store *store.Store
	log   zerolog.Logger
	now   func() time.Time
}

// New creates a Service storing files under dir
func New(dir string, s *store.Store, log zerolog.Logger) *Service {
	return &Service{dir: dir, store: s, log: log, now: time.Now}
}

// Save stores the content of r and creates its process. Files that are not
// readable as PDF are kept, without page information.
func (u *Service) Save(ctx context.Context, originalName string, r io.Reader) (*domain.Process, error) {
	if err := os.MkdirAll(u.dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	filename := strconv.FormatInt(u.now().UnixMilli(), 10) + "-" + SanitizeName(originalName)
	path := filepath.Join(u.dir, filename)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close file: %w", err)
	}

	proc := domain.Process{
		OriginalName: originalName,
		Filename:     filename,
		Path:         URLPrefix + filename,
	}
	if info, err := Inspect(path); err != nil {
		u.log.Warn().Err(err).Str("file", filename).Msg("uploaded file is not a readable pdf")
	} else {
		proc.PageCount = info.Count
		proc.Pages = info.Sizes
	}

	created, err := u.store.CreateProcess(ctx, proc)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	u.log.Info().
		Str("process", created.ID).
		Str("file", filename).
		Int("pages", created.PageCount).
		Msg("document uploaded")
	return created, nil
}
