package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/jobrunner/spatialquery/internal/config"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

// AzureStorage serves packages from an Azure Blob Storage container.
type AzureStorage struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzureStorage creates an Azure Blob Storage adapter. A connection string
// takes precedence over account name and key.
func NewAzureStorage(cfg config.AzureConfig) (*AzureStorage, error) {
	client, err := newAzureClient(cfg)
	if err != nil {
		return nil, storageError("configure", cfg.Container, err)
	}

	return &AzureStorage{
		client:    client,
		container: cfg.Container,
		prefix:    strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func newAzureClient(cfg config.AzureConfig) (*azblob.Client, error) {
	if cfg.ConnectionString != "" {
		return azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	return azblob.NewClientWithSharedKeyCredential(url, cred, nil)
}

// List returns the package blobs below the prefix.
func (s *AzureStorage) List(ctx context.Context) ([]output.StorageObject, error) {
	var objects []output.StorageObject

	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix: &s.prefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, storageError(opList, s.container, err)
		}

		for _, blob := range page.Segment.BlobItems {
			if blob.Name == nil || !isPackageKey(*blob.Name) {
				continue
			}
			objects = append(objects, blobObject(relativeKey(s.prefix, *blob.Name), blob.Properties))
		}
	}

	return objects, nil
}

func blobObject(key string, props *container.BlobProperties) output.StorageObject {
	obj := output.StorageObject{Key: key}
	if props == nil {
		return obj
	}
	if props.ContentLength != nil {
		obj.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		obj.LastModified = *props.LastModified
	}
	if props.ETag != nil {
		obj.ETag = strings.Trim(string(*props.ETag), `"`)
	}
	return obj
}

// Download writes the blob to dest.
func (s *AzureStorage) Download(ctx context.Context, key, dest string) error {
	return download(ctx, s, key, dest)
}

// GetReader streams the blob body.
func (s *AzureStorage) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, joinKey(s.prefix, key), nil)
	if err != nil {
		return nil, storageError(opRead, key, err)
	}
	return resp.Body, nil
}

// Exists reads the blob properties. Only BlobNotFound means false.
func (s *AzureStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.ServiceClient().
		NewContainerClient(s.container).
		NewBlobClient(joinKey(s.prefix, key)).
		GetProperties(ctx, nil)
	switch {
	case err == nil:
		return true, nil
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		return false, nil
	default:
		return false, storageError(opExists, key, err)
	}
}
