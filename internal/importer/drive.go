package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/starford/lattice/internal/apperr"
)

// maxDriveBytes caps the text read from one Drive file.
const maxDriveBytes = 8 << 20

// DriveConfig configures the Google Drive source.
type DriveConfig struct {
	// CredentialsFile is a service account or OAuth client JSON file.
	CredentialsFile string
	// APIKey reads publicly shared files without OAuth.
	APIKey string
	// Endpoint overrides the API base URL (proxies, tests).
	Endpoint string
}

// Enabled reports whether any credential is configured.
func (c DriveConfig) Enabled() bool {
	return c.CredentialsFile != "" || c.APIKey != "" || c.Endpoint != ""
}

// DriveSource fetches documents from Google Drive as plain text.
type DriveSource struct {
	cfg    DriveConfig
	logger *slog.Logger

	mu  sync.RWMutex
	svc *drive.Service
}

// NewDriveSource creates an uninitialised Drive source.
func NewDriveSource(cfg DriveConfig, logger *slog.Logger) *DriveSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &DriveSource{cfg: cfg, logger: logger}
}

// Name implements Source.
func (d *DriveSource) Name() string { return "drive" }

// Init builds the Drive client. It does not contact the API.
func (d *DriveSource) Init(ctx context.Context) error {
	opts := []option.ClientOption{}
	switch {
	case d.cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(d.cfg.CredentialsFile), option.WithScopes(drive.DriveReadonlyScope))
	case d.cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(d.cfg.APIKey))
	default:
		opts = append(opts, option.WithoutAuthentication())
	}
	if d.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(d.cfg.Endpoint))
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("importer: drive init: %v: %w", err, apperr.ErrExternalService)
	}
	d.mu.Lock()
	d.svc = svc
	d.mu.Unlock()
	d.logger.Info("importer: drive source ready")
	return nil
}

// IsReady implements Source.
func (d *DriveSource) IsReady() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.svc != nil
}

// Teardown implements Source.
func (d *DriveSource) Teardown() error {
	d.mu.Lock()
	d.svc = nil
	d.mu.Unlock()
	return nil
}

// Fetch returns the name and plain-text body of fileID. Google Docs are
// exported as text/plain; other files are downloaded as-is.
func (d *DriveSource) Fetch(ctx context.Context, fileID string) (Document, error) {
	d.mu.RLock()
	svc := d.svc
	d.mu.RUnlock()
	if svc == nil {
		return Document{}, ErrNotReady
	}
	if strings.TrimSpace(fileID) == "" {
		return Document{}, fmt.Errorf("importer: drive file id is required")
	}

	f, err := svc.Files.Get(fileID).Fields("id", "name", "mimeType").Context(ctx).Do()
	if err != nil {
		return Document{}, fmt.Errorf("importer: drive get %s: %v: %w", fileID, err, apperr.ErrExternalService)
	}

	var body io.ReadCloser
	title := TitleFromName(f.Name)
	if strings.HasPrefix(f.MimeType, "application/vnd.google-apps.") {
		title = strings.TrimSpace(f.Name)
		resp, err := svc.Files.Export(fileID, "text/plain").Context(ctx).Download()
		if err != nil {
			return Document{}, fmt.Errorf("importer: drive export %s: %v: %w", fileID, err, apperr.ErrExternalService)
		}
		body = resp.Body
	} else {
		resp, err := svc.Files.Get(fileID).Context(ctx).Download()
		if err != nil {
			return Document{}, fmt.Errorf("importer: drive download %s: %v: %w", fileID, err, apperr.ErrExternalService)
		}
		body = resp.Body
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxDriveBytes))
	if err != nil {
		return Document{}, fmt.Errorf("importer: drive read %s: %v: %w", fileID, err, apperr.ErrExternalService)
	}
	d.logger.Debug("importer: drive file fetched", slog.String("file_id", fileID), slog.String("mime_type", f.MimeType))
	return Document{
		Title: title,
		Text:  strings.TrimPrefix(string(data), "\ufeff"),
	}, nil
}
