package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/mfcarvalho/legalconsult/internal/gcp"
	"github.com/mfcarvalho/legalconsult/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"
)

const (
	// extractConcurrency bounds parallel page extraction for previews.
	extractConcurrency = 4

	// fallbackFilename is used when a download URL carries no usable name.
	fallbackFilename = "downloaded.pdf"

	downloadTimeout = 30 * time.Second
)

// DocumentStore accepts a PDF from upload, https download or gs:// URI,
// validates it, and extracts single pages for cited-page previews.
type DocumentStore struct {
	httpClient    *http.Client
	storageClient *storage.Client
	maxBytes      int64
}

// NewDocumentStore creates a store with the given size cap in bytes.
// storageClient may be nil when gs:// sources are not needed.
func NewDocumentStore(storageClient *storage.Client, maxBytes int64) *DocumentStore {
	return &DocumentStore{
		httpClient:    &http.Client{Timeout: downloadTimeout},
		storageClient: storageClient,
		maxBytes:      maxBytes,
	}
}

// FromUpload validates uploaded bytes and returns the loaded document.
func (s *DocumentStore) FromUpload(name string, data []byte) (*models.Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidDocument)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: file is %d bytes, limit is %d", ErrInvalidDocument, len(data), s.maxBytes)
	}

	conf := pdfConfig()
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return nil, fmt.Errorf("%w: not a well-formed PDF: %v", ErrInvalidDocument, err)
	}
	pageCount, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count pages: %v", ErrInvalidDocument, err)
	}

	if name == "" {
		name = fallbackFilename
	}
	hash := sha256.Sum256(data)
	doc := &models.Document{
		Name:      name,
		Size:      int64(len(data)),
		PageCount: pageCount,
		SHA256:    hex.EncodeToString(hash[:]),
		Data:      data,
		LoadedAt:  time.Now(),
	}
	slog.Info("Document loaded.", "name", doc.Name, "pageCount", doc.PageCount, "bytes", doc.Size, "fileHash", doc.SHA256[:12])
	return doc, nil
}

// FromURL fetches a document from an https URL or a gs:// URI and
// validates it like an upload.
func (s *DocumentStore) FromURL(ctx context.Context, rawURL string) (*models.Document, error) {
	if strings.HasPrefix(rawURL, "gs://") {
		return s.fromGCS(ctx, rawURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: URL must be http(s) or gs://: %q", ErrInvalidDocument, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: download failed: %v", ErrInvalidDocument, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: download returned status %d", ErrInvalidDocument, resp.StatusCode)
	}
	if !looksLikePDF(resp.Header.Get("Content-Type"), u.Path) {
		return nil, fmt.Errorf("%w: URL does not point to a PDF (content type %q)", ErrInvalidDocument, resp.Header.Get("Content-Type"))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: download failed: %v", ErrInvalidDocument, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: download exceeds the %d byte limit", ErrInvalidDocument, s.maxBytes)
	}

	return s.FromUpload(filenameFromPath(u.Path), data)
}

func (s *DocumentStore) fromGCS(ctx context.Context, uri string) (*models.Document, error) {
	if s.storageClient == nil {
		return nil, fmt.Errorf("%w: gs:// sources are not configured", ErrInvalidDocument)
	}
	bucket, object, err := gcp.ParseGSURI(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	data, err := gcp.FetchObject(ctx, s.storageClient, bucket, object, s.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return s.FromUpload(filenameFromPath(object), data)
}

// ExtractPage returns page n of the document as a standalone one-page
// PDF. Pages are 1-based.
func (s *DocumentStore) ExtractPage(doc *models.Document, page int) ([]byte, error) {
	if doc == nil || len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: no document loaded", ErrInvalidDocument)
	}
	if page < 1 || page > doc.PageCount {
		return nil, fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, page, doc.PageCount)
	}

	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(doc.Data), &buf, []string{strconv.Itoa(page)}, pdfConfig()); err != nil {
		return nil, fmt.Errorf("failed to extract page %d: %w", page, err)
	}
	return buf.Bytes(), nil
}

// ExtractPages extracts the given pages concurrently, in ascending page
// order, silently skipping duplicates and out-of-range pages. The model
// occasionally cites pages the document does not have.
func (s *DocumentStore) ExtractPages(ctx context.Context, doc *models.Document, pages []int) ([]models.PageExtract, error) {
	if doc == nil || len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: no document loaded", ErrInvalidDocument)
	}

	wanted := make([]int, 0, len(pages))
	seen := make(map[int]bool, len(pages))
	for _, p := range pages {
		if p < 1 || p > doc.PageCount {
			slog.Warn("Skipping cited page outside the document.", "page", p, "pageCount", doc.PageCount)
			continue
		}
		if !seen[p] {
			seen[p] = true
			wanted = append(wanted, p)
		}
	}
	sort.Ints(wanted)
	if len(wanted) == 0 {
		return nil, nil
	}

	extracts := make([]models.PageExtract, len(wanted))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(extractConcurrency)
	for i, p := range wanted {
		eg.Go(func() error {
			// Trimming is not cancelable; bail before starting a page
			// once a peer has failed or the request is gone.
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := s.ExtractPage(doc, p)
			if err != nil {
				return fmt.Errorf("page %d: %w", p, err)
			}
			extracts[i] = models.PageExtract{Page: p, Data: data}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return extracts, nil
}

func pdfConfig() *pdfmodel.Configuration {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	return conf
}

// looksLikePDF accepts a PDF content type, or a path ending in .pdf
// for servers that mislabel downloads.
func looksLikePDF(contentType, urlPath string) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(urlPath), ".pdf")
}

func filenameFromPath(p string) string {
	base := path.Base(p)
	if base == "." || base == "/" || base == "" || !strings.HasSuffix(strings.ToLower(base), ".pdf") {
		return fallbackFilename
	}
	return base
}
