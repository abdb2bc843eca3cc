// Package drive lists and downloads documents from a Google Drive folder
// using a service account.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mfenderov/protokb/internal/apperr"
	"github.com/mfenderov/protokb/pkg/models"
)

const (
	serviceName     = "drive"
	pageSize        = 50
	maxDownloadSize = 50 << 20
	fileFields      = "id,name,mimeType,size,modifiedTime,webViewLink"
)

// Config holds the service-account credentials and limits.
type Config struct {
	ServiceAccountEmail string
	PrivateKey          string
	FolderID            string
	ListTimeout         time.Duration
	DownloadTimeout     time.Duration
	RequestsPerSecond   float64
	Burst               int
	MaxDownloadSize     int64 // bytes; larger files fail with ErrFileTooLarge
}

// ErrFileTooLarge is returned by Download for files over MaxDownloadSize.
var ErrFileTooLarge = errors.New("file exceeds download size limit")

func (c Config) withDefaults() Config {
	if c.ListTimeout <= 0 {
		c.ListTimeout = 10 * time.Second
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 30 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 8
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	if c.MaxDownloadSize <= 0 {
		c.MaxDownloadSize = maxDownloadSize
	}
	return c
}

func (c Config) credentialsError() error {
	if c.ServiceAccountEmail == "" {
		return apperr.Missing("drive.service_account_email")
	}
	if c.PrivateKey == "" {
		return apperr.Missing("drive.private_key")
	}
	return nil
}

// normalizeKey turns literal "\n" escapes, as found in env files, into
// newlines.
func normalizeKey(key string) string {
	return strings.ReplaceAll(key, `\n`, "\n")
}

func (c Config) jwtConfig() *jwt.Config {
	return &jwt.Config{
		Email:      c.ServiceAccountEmail,
		PrivateKey: []byte(normalizeKey(c.PrivateKey)),
		Scopes:     []string{drive.DriveReadonlyScope},
		TokenURL:   google.JWTTokenURL,
	}
}

// Client talks to the Drive v3 API. A Client built without credentials is
// usable but every call fails with a ConfigurationError.
type Client struct {
	cfg     Config
	svc     *drive.Service
	credErr error
	limiter *rate.Limiter
}

// New creates a Client. Extra client options replace the service-account
// token source; tests use them to point at a fake server.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}

	if err := cfg.credentialsError(); err != nil {
		slog.Warn("drive credentials not configured", "error", err)
		c.credErr = err
		return c, nil
	}

	if len(opts) == 0 {
		opts = []option.ClientOption{option.WithTokenSource(cfg.jwtConfig().TokenSource(ctx))}
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	c.svc = svc
	return c, nil
}

// FolderID returns the configured default folder.
func (c *Client) FolderID() string {
	return c.cfg.FolderID
}

func (c *Client) ready(ctx context.Context) error {
	if c.credErr != nil {
		return c.credErr
	}
	return c.limiter.Wait(ctx)
}

// ListFiles returns up to 50 non-trashed files in folderID whose type is one
// of types, newest first.
func (c *Client) ListFiles(ctx context.Context, folderID string, types []models.DeclaredType) ([]models.DocumentMetadata, error) {
	if folderID == "" {
		return nil, apperr.Missing("drive.folder_id")
	}
	if err := c.ready(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ListTimeout)
	defer cancel()

	resp, err := c.svc.Files.List().
		Q(listQuery(folderID, models.MIMETypes(types))).
		Fields(googleapi.Field("files(" + fileFields + ")")).
		PageSize(pageSize).
		OrderBy("modifiedTime desc").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, translate("list files", err)
	}

	files := make([]models.DocumentMetadata, 0, len(resp.Files))
	for _, f := range resp.Files {
		files = append(files, toMetadata(f))
	}
	slog.Debug("listed drive folder", "folder", folderID, "files", len(files))
	return files, nil
}

// GetFile returns the metadata of a single file.
func (c *Client) GetFile(ctx context.Context, id string) (models.DocumentMetadata, error) {
	if err := c.ready(ctx); err != nil {
		return models.DocumentMetadata{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ListTimeout)
	defer cancel()

	f, err := c.svc.Files.Get(id).
		Fields(googleapi.Field(fileFields)).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return models.DocumentMetadata{}, translate("get file "+id, err)
	}
	return toMetadata(f), nil
}

// Download returns the raw bytes of a file. Google Docs are exported as HTML
// and Google Sheets as xlsx.
func (c *Client) Download(ctx context.Context, id string, typ models.DeclaredType) ([]byte, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)
	defer cancel()

	var call downloader
	switch typ {
	case models.TypeGoogleDoc:
		call = c.svc.Files.Export(id, "text/html").Context(ctx)
	case models.TypeGoogleSheet:
		call = c.svc.Files.Export(id, models.MIMESpreadsheet).Context(ctx)
	default:
		call = c.svc.Files.Get(id).SupportsAllDrives(true).Context(ctx)
	}

	resp, err := call.Download()
	if err != nil {
		return nil, translate("download file "+id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxDownloadSize+1))
	if err != nil {
		return nil, translate("read file "+id, err)
	}
	if int64(len(data)) > c.cfg.MaxDownloadSize {
		return nil, fmt.Errorf("read file %s: %w (%d bytes)", id, ErrFileTooLarge, c.cfg.MaxDownloadSize)
	}
	return data, nil
}

type downloader interface {
	Download(opts ...googleapi.CallOption) (*http.Response, error)
}

// Health is the result of a connectivity check.
type Health struct {
	Connected      bool                  `json:"connected"`
	DocumentsFound int                   `json:"documentsFound"`
	SupportedTypes []models.DeclaredType `json:"supportedTypes"`
	Errors         []string              `json:"errors"`
}

// Check lists the configured folder and reports what it found.
func (c *Client) Check(ctx context.Context) Health {
	h := Health{SupportedTypes: models.SupportedTypes, Errors: []string{}}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)
	defer cancel()

	files, err := c.ListFiles(ctx, c.cfg.FolderID, models.SupportedTypes)
	if err != nil {
		h.Errors = append(h.Errors, err.Error())
		return h
	}
	h.Connected = true
	h.DocumentsFound = len(files)
	return h
}

func listQuery(folderID string, mimeTypes []string) string {
	q := fmt.Sprintf("'%s' in parents and trashed = false", escape(folderID))
	if len(mimeTypes) == 0 {
		return q
	}
	clauses := make([]string, len(mimeTypes))
	for i, m := range mimeTypes {
		clauses[i] = fmt.Sprintf("mimeType = '%s'", escape(m))
	}
	return q + " and (" + strings.Join(clauses, " or ") + ")"
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func toMetadata(f *drive.File) models.DocumentMetadata {
	typ := models.DeclaredTypeFromMIME(f.MimeType)
	if typ == models.TypeUnknown {
		typ = models.DeclaredTypeFromName(f.Name)
	}
	return models.DocumentMetadata{
		ID:           f.Id,
		Name:         f.Name,
		Type:         typ,
		Size:         f.Size,
		ModifiedTime: f.ModifiedTime,
		WebViewLink:  f.WebViewLink,
	}
}

// translate converts Drive API failures to RemoteServiceError, leaving
// context errors intact.
func translate(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = strings.TrimSpace(gerr.Body)
		}
		return fmt.Errorf("%s: %w", op, &apperr.RemoteServiceError{
			Service:    serviceName,
			StatusCode: gerr.Code,
			Message:    msg,
		})
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, &apperr.RemoteServiceError{Service: serviceName, Message: err.Error()})
}
