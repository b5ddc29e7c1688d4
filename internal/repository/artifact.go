package repository

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"support_chat/internal/domain"
	apperrors "support_chat/pkg/errors"
	"support_chat/pkg/logger"
)

const (
	artifactPrefix     = "chat-export-"
	artifactTimeLayout = "20060102T150405.000000000Z"
)

var artifactNamePattern = regexp.MustCompile(`^chat-export-(\d{8}T\d{6}\.\d{9}Z)-[0-9a-f]{8}\.(json|xlsx)$`)

// ArtifactRepository - каталог артефактов экспорта на диске
type ArtifactRepository interface {
	Save(ctx context.Context, format string, snapshot *domain.ExportSnapshot) (*domain.ExportArtifact, error)
	List(ctx context.Context) ([]domain.ExportArtifact, error)
	Open(ctx context.Context, name string) (io.ReadCloser, *domain.ExportArtifact, error)
	Load(ctx context.Context, name string) (*domain.ExportSnapshot, error)
	Delete(ctx context.Context, name string) error
}

type fileArtifactRepository struct {
	dir string
	log logger.Logger
}

func NewFileArtifactRepository(dir string, log logger.Logger) (ArtifactRepository, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	return &fileArtifactRepository{dir: dir, log: log}, nil
}

// ArtifactName строит имя, сортируемое по времени создания
func ArtifactName(createdAt time.Time, format string) string {
	id := uuid.New()
	return fmt.Sprintf("%s%s-%s.%s", artifactPrefix, createdAt.UTC().Format(artifactTimeLayout), hex.EncodeToString(id[:4]), format)
}

// ParseArtifactName проверяет имя и возвращает время создания и формат
func ParseArtifactName(name string) (time.Time, string, error) {
	match := artifactNamePattern.FindStringSubmatch(name)
	if match == nil {
		return time.Time{}, "", fmt.Errorf("%w: invalid artifact name %q", apperrors.ErrValidation, name)
	}
	createdAt, err := time.Parse(artifactTimeLayout, match[1])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: invalid artifact time: %v", apperrors.ErrValidation, err)
	}
	return createdAt, match[2], nil
}

func (r *fileArtifactRepository) Save(ctx context.Context, format string, snapshot *domain.ExportSnapshot) (*domain.ExportArtifact, error) {
	codec, err := codecFor(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := ArtifactName(snapshot.CreatedAt, codec.Format())
	path := filepath.Join(r.dir, name)

	// Пишем во временный файл и переименовываем, чтобы список не видел недописанный артефакт
	tmp, err := os.CreateTemp(r.dir, ".tmp-"+artifactPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := codec.Encode(tmp, snapshot); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("publish artifact: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}

	r.log.Info("Export artifact written", "name", name, "size", info.Size(), "messages", len(snapshot.Messages))

	return &domain.ExportArtifact{
		Name:      name,
		Size:      info.Size(),
		CreatedAt: snapshot.CreatedAt.UTC(),
		Format:    codec.Format(),
	}, nil
}

func (r *fileArtifactRepository) List(ctx context.Context) ([]domain.ExportArtifact, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read export directory: %w", err)
	}

	artifacts := make([]domain.ExportArtifact, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), artifactPrefix) {
			continue
		}
		createdAt, format, err := ParseArtifactName(entry.Name())
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// файл удален между ReadDir и Info
			continue
		}
		artifacts = append(artifacts, domain.ExportArtifact{
			Name:      entry.Name(),
			Size:      info.Size(),
			CreatedAt: createdAt,
			Format:    format,
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].Name > artifacts[j].Name
	})
	return artifacts, nil
}

func (r *fileArtifactRepository) Open(ctx context.Context, name string) (io.ReadCloser, *domain.ExportArtifact, error) {
	createdAt, format, err := ParseArtifactName(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(r.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", apperrors.ErrArtifactNotFound, name)
		}
		return nil, nil, fmt.Errorf("open artifact: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat artifact: %w", err)
	}
	return f, &domain.ExportArtifact{Name: name, Size: info.Size(), CreatedAt: createdAt, Format: format}, nil
}

func (r *fileArtifactRepository) Load(ctx context.Context, name string) (*domain.ExportSnapshot, error) {
	rc, artifact, err := r.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	codec, err := codecFor(artifact.Format)
	if err != nil {
		return nil, err
	}
	return codec.Decode(rc)
}

func (r *fileArtifactRepository) Delete(ctx context.Context, name string) error {
	if _, _, err := ParseArtifactName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(r.dir, name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", apperrors.ErrArtifactNotFound, name)
		}
		return fmt.Errorf("delete artifact: %w", err)
	}
	r.log.Info("Export artifact deleted", "name", name)
	return nil
}
