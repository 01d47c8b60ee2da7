package blob

import (
	"context"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/frobelworks/dbops/internal/config"
)

// AzureStore implements Store against an Azure blob container.
type AzureStore struct {
	client     *azblob.Client
	accountURL string
	container  string
}

var _ Store = (*AzureStore)(nil)

// NewAzureStore creates a store for the configured container.
func NewAzureStore(cfg *config.StorageConfig, cred azcore.TokenCredential) (*AzureStore, error) {
	client, err := azblob.NewClient(cfg.AccountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating blob client for %s: %w", cfg.AccountURL, err)
	}
	return &AzureStore{
		client:     client,
		accountURL: cfg.AccountURL,
		container:  cfg.Container,
	}, nil
}

// Exists lists the container with the name as prefix and requires an
// exact match.
func (s *AzureStore) Exists(ctx context.Context, name string) (bool, error) {
	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix: &name,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("listing container %s: %w", s.container, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil && *item.Name == name {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *AzureStore) Download(ctx context.Context, name, destPath string) error {
	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating local file %s: %w", destPath, err)
	}
	defer file.Close()

	if _, err := s.client.DownloadFile(ctx, s.container, name, file, nil); err != nil {
		return fmt.Errorf("downloading %s from %s: %w", name, s.container, err)
	}
	return nil
}

func (s *AzureStore) Delete(ctx context.Context, name string) error {
	if _, err := s.client.DeleteBlob(ctx, s.container, name, nil); err != nil {
		return fmt.Errorf("deleting %s from %s: %w", name, s.container, err)
	}
	return nil
}

func (s *AzureStore) Identifier() string {
	return fmt.Sprintf("%s/%s", s.accountURL, s.container)
}
