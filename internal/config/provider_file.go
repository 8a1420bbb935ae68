package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// FileProvider implements SecretProvider by reading secret files mounted into
// the container (Docker/Kubernetes secrets). Trailing newlines are trimmed.
type FileProvider struct {
	readFile func(name string) ([]byte, error)
}

// NewFileProvider creates a FileProvider backed by os.ReadFile.
func NewFileProvider() *FileProvider {
	return &FileProvider{readFile: os.ReadFile}
}

// GetParametersBatch reads each path. Missing files are omitted from the
// result; any other read error aborts the batch.
func (p *FileProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, path := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := p.readFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading secret file %s: %w", path, err)
		}
		result[path] = strings.TrimRight(string(data), "\r\n")
	}
	return result, nil
}
