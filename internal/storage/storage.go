// Package storage persists generated report artifacts and resolves them back
// for download.
//
// A stored artifact is referenced by a single opaque locator string on the
// report job. The locator is a tagged union dispatched on its prefix:
//
//   - "repenc1.<iv>.<tag>.<ciphertext>": inline, AES-256-GCM encrypted,
//     base64url segments
//   - "repraw1.<payload>": inline, unencrypted base64url
//   - "s3:<key>": object storage key
//   - anything else: a filesystem path under the tenant's report directory
//
// The distinct schemes guarantee decryption is never attempted on a
// plaintext payload and vice versa.
package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/campushq/reportworks/internal/domain"
)

// Locator scheme prefixes. The version suffix leaves room for a future
// format change without breaking stored rows.
const (
	schemeInlineEncrypted = "repenc1"
	schemeInlineRaw       = "repraw1"
	schemeObjectPrefix    = "s3:"
)

// Mode selects where generated buffers are persisted.
type Mode string

const (
	// ModeInline embeds the artifact in the job row's locator field,
	// encrypted when a key is configured.
	ModeInline Mode = "inline"

	// ModeFilesystem writes the artifact under a tenant-partitioned
	// directory.
	ModeFilesystem Mode = "filesystem"

	// ModeS3 writes the artifact to S3-compatible object storage.
	ModeS3 Mode = "s3"
)

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Mode           Mode
	InlineMaxBytes int64  // inline payloads above this fall back to filesystem
	EncryptionKey  []byte // nil means inline storage is unencrypted
	BaseDir        string // root for filesystem artifacts
	Objects        *ObjectStore
}

// Resolver decides per buffer how an artifact is persisted and reverses the
// decision on download. The encryption key is immutable process state,
// injected once at startup.
type Resolver struct {
	mode      Mode
	inlineMax int64
	key       []byte
	baseDir   string
	objects   *ObjectStore
	logger    *slog.Logger
}

// NewResolver creates a Resolver. The base directory is created if missing;
// it is needed even in inline mode as the oversized-payload fallback target.
func NewResolver(cfg ResolverConfig, logger *slog.Logger) (*Resolver, error) {
	switch cfg.Mode {
	case ModeInline, ModeFilesystem, ModeS3:
	default:
		return nil, fmt.Errorf("unknown storage mode: %q", cfg.Mode)
	}
	if cfg.Mode == ModeS3 && cfg.Objects == nil {
		return nil, fmt.Errorf("storage mode s3 requires an object store")
	}

	absDir, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve report directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	return &Resolver{
		mode:      cfg.Mode,
		inlineMax: cfg.InlineMaxBytes,
		key:       cfg.EncryptionKey,
		baseDir:   absDir,
		objects:   cfg.Objects,
		logger:    logger,
	}, nil
}

// ArtifactName derives the client-safe artifact filename for a job:
// <report_type>_<job_id>.<ext>, restricted to a safe character set.
func ArtifactName(job *domain.ReportJob) string {
	base := sanitizeName(fmt.Sprintf("%s_%s", job.ReportType, job.ID))
	return base + "." + job.Format.FileExtension()
}

// Store persists a generated buffer and returns its locator.
func (r *Resolver) Store(ctx context.Context, schema string, job *domain.ReportJob, data []byte) (string, error) {
	name := ArtifactName(job)

	switch r.mode {
	case ModeInline:
		if int64(len(data)) <= r.inlineMax {
			return r.encodeInline(data)
		}
		// Oversized inline payloads never fail the job; they spill to the
		// filesystem instead.
		r.logger.Warn("inline payload exceeds threshold, falling back to filesystem",
			"job_id", job.ID,
			"size_bytes", len(data),
			"inline_max_bytes", r.inlineMax,
		)
		return r.storeFile(schema, name, data)

	case ModeS3:
		key := path.Join(sanitizeName(schema), name)
		if err := r.objects.Put(ctx, key, data, job.Format.ContentType()); err != nil {
			return "", err
		}
		return schemeObjectPrefix + key, nil

	default:
		return r.storeFile(schema, name, data)
	}
}

// Load resolves a locator back to the stored bytes, dispatching on the
// scheme prefix.
func (r *Resolver) Load(ctx context.Context, locator string) ([]byte, error) {
	switch {
	case locator == "":
		return nil, &StorageError{Op: "Load", Err: ErrInvalidLocator}

	case strings.HasPrefix(locator, schemeInlineEncrypted+"."):
		if r.key == nil {
			// An encrypted payload with no configured key is unreadable;
			// surface it as missing rather than leaking why.
			r.logger.Warn("encrypted inline locator but no encryption key configured")
			return nil, &StorageError{Op: "Load", Err: ErrNotFound}
		}
		data, err := decryptInline(r.key, locator)
		if err != nil {
			return nil, &StorageError{Op: "Load", Err: err}
		}
		return data, nil

	case strings.HasPrefix(locator, schemeInlineRaw+"."):
		data, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(locator, schemeInlineRaw+"."))
		if err != nil {
			return nil, &StorageError{Op: "Load", Err: ErrInvalidLocator}
		}
		return data, nil

	case strings.HasPrefix(locator, schemeObjectPrefix):
		if r.objects == nil {
			return nil, &StorageError{Op: "Load", Key: locator, Err: ErrNotFound}
		}
		return r.objects.Get(ctx, strings.TrimPrefix(locator, schemeObjectPrefix))

	default:
		return r.loadFile(locator)
	}
}

// Remove deletes the artifact behind a locator. Inline locators have no
// external artifact and removing one is a no-op. Missing artifacts are not
// an error: removal is idempotent for the cleanup sweep.
func (r *Resolver) Remove(ctx context.Context, locator string) error {
	switch {
	case strings.HasPrefix(locator, schemeInlineEncrypted+"."),
		strings.HasPrefix(locator, schemeInlineRaw+"."):
		return nil

	case strings.HasPrefix(locator, schemeObjectPrefix):
		if r.objects == nil {
			return nil
		}
		return r.objects.Delete(ctx, strings.TrimPrefix(locator, schemeObjectPrefix))

	default:
		fullPath, err := r.resolvePath(locator)
		if err != nil {
			return &StorageError{Op: "Remove", Key: locator, Err: err}
		}
		if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
			return &StorageError{Op: "Remove", Key: locator, Err: err}
		}
		return nil
	}
}

// =============================================================================
// Inline encoding
// =============================================================================

func (r *Resolver) encodeInline(data []byte) (string, error) {
	if r.key != nil {
		locator, err := encryptInline(r.key, data)
		if err != nil {
			return "", &StorageError{Op: "Store", Err: err}
		}
		return locator, nil
	}
	return schemeInlineRaw + "." + base64.RawURLEncoding.EncodeToString(data), nil
}

// =============================================================================
// Filesystem backend
// =============================================================================

// storeFile writes the artifact under <base>/<schema>/<name> and returns the
// absolute path as the locator.
func (r *Resolver) storeFile(schema, name string, data []byte) (string, error) {
	dir := filepath.Join(r.baseDir, sanitizeName(schema))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &StorageError{Op: "Store", Key: name, Err: err}
	}

	fullPath := filepath.Join(dir, name)
	resolved, err := r.resolvePath(fullPath)
	if err != nil {
		return "", &StorageError{Op: "Store", Key: name, Err: err}
	}

	if err := os.WriteFile(resolved, data, 0o644); err != nil {
		return "", &StorageError{Op: "Store", Key: name, Err: err}
	}
	return resolved, nil
}

func (r *Resolver) loadFile(locator string) ([]byte, error) {
	fullPath, err := r.resolvePath(locator)
	if err != nil {
		return nil, &StorageError{Op: "Load", Key: locator, Err: err}
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &StorageError{Op: "Load", Key: locator, Err: ErrNotFound}
		}
		return nil, &StorageError{Op: "Load", Key: locator, Err: err}
	}
	return data, nil
}

// resolvePath cleans a candidate path and verifies it stays inside the base
// report directory. Locators are never client-controlled, but the job id and
// schema they are built from originally were, so the guard stays.
func (r *Resolver) resolvePath(candidate string) (string, error) {
	resolved := filepath.Clean(candidate)
	if resolved != r.baseDir && !strings.HasPrefix(resolved, r.baseDir+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return resolved, nil
}

// sanitizeName restricts a path segment to a safe character set. Anything
// outside [a-zA-Z0-9_-] becomes an underscore, which also flattens any
// separator or dot sequence an attacker could sneak in.
func sanitizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
