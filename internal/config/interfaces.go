package config

import "context"

// SecretProvider abstracts the retrieval of secret values referenced from the
// environment. The loader hands it the references it found (for the file
// provider, paths of mounted secret files) and receives reference -> value.
type SecretProvider interface {
	// GetParametersBatch resolves every key it can. Keys that cannot be
	// resolved are omitted from the result; the loader reports them.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
