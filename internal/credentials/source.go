package credentials

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/spf13/afero"
)

// SecretManagerScheme prefixes a Secret Manager secret version resource
// name, e.g. gcpsm://projects/p/secrets/kiosk/versions/latest.
const SecretManagerScheme = "gcpsm://"

// SecretFetcher reads a secret version payload.
type SecretFetcher func(ctx context.Context, name string) ([]byte, error)

func accessSecretVersion(ctx context.Context, name string) ([]byte, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	defer client.Close()

	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access secret version %s: %w", name, err)
	}

	return resp.GetPayload().GetData(), nil
}

// loadCiphertext reads the ciphertext from a file or Secret Manager. Text
// payloads holding hex or base64 are decoded; anything else is raw bytes.
func (s *Supplier) loadCiphertext(ctx context.Context, location string) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	if name, ok := strings.CutPrefix(location, SecretManagerScheme); ok {
		data, err = s.fetch(ctx, name)
	} else {
		data, err = afero.ReadFile(s.fs, location)
		if err != nil {
			err = fmt.Errorf("failed to read ciphertext file: %w", err)
		}
	}
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("ciphertext at %s is empty", location)
	}

	if decoded, err := decodeMaterial(string(data)); err == nil {
		return decoded, nil
	}
	return data, nil
}
