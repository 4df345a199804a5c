package storage

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/jobrunner/geolayers/internal/domain"
	"github.com/jobrunner/geolayers/internal/ports/output"
)

// AzureStorage reads layer files from an Azure Blob Storage container.
type AzureStorage struct {
	client    *azblob.Client
	container string
	prefix    string
	filter    Filter
}

// AzureConfig holds Azure Blob Storage configuration. A connection string
// takes precedence over account name and key.
type AzureConfig struct {
	Container        string
	AccountName      string
	AccountKey       string
	ConnectionString string
	Prefix           string
	Filter           Filter
}

// NewAzureStorage creates a new Azure Blob Storage adapter.
func NewAzureStorage(cfg AzureConfig) (*AzureStorage, error) {
	client, err := newAzureClient(cfg)
	if err != nil {
		return nil, err
	}

	return &AzureStorage{
		client:    client,
		container: cfg.Container,
		prefix:    strings.TrimSuffix(cfg.Prefix, "/"),
		filter:    cfg.Filter,
	}, nil
}

func newAzureClient(cfg AzureConfig) (*azblob.Client, error) {
	if cfg.ConnectionString != "" {
		return azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, err
	}
	return azblob.NewClientWithSharedKeyCredential("https://"+cfg.AccountName+".blob.core.windows.net/", cred, nil)
}

// List returns the layer blobs below the prefix.
func (s *AzureStorage) List(ctx context.Context) ([]output.StorageObject, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if s.prefix != "" {
		prefix := s.prefix + "/"
		opts.Prefix = &prefix
	}

	var objects []output.StorageObject
	pager := s.client.NewListBlobsFlatPager(s.container, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Segment.BlobItems {
			if obj, ok := s.blobObject(item); ok {
				objects = append(objects, obj)
			}
		}
	}
	return objects, nil
}

// blobObject converts a listed blob, reporting false for filtered blobs.
func (s *AzureStorage) blobObject(item *container.BlobItem) (output.StorageObject, bool) {
	if item.Name == nil {
		return output.StorageObject{}, false
	}
	key := trimKey(*item.Name, s.prefix)
	if !s.filter.Match(key) {
		return output.StorageObject{}, false
	}

	obj := output.StorageObject{Key: key}
	if p := item.Properties; p != nil {
		if p.ContentLength != nil {
			obj.Size = *p.ContentLength
		}
		if p.LastModified != nil {
			obj.LastModified = p.LastModified.Unix()
		}
		if p.ETag != nil {
			obj.ETag = strings.Trim(string(*p.ETag), `"`)
		}
	}
	return obj, true
}

// Stat returns the metadata of key.
func (s *AzureStorage) Stat(ctx context.Context, key string) (output.StorageObject, error) {
	blob := s.client.ServiceClient().
		NewContainerClient(s.container).
		NewBlobClient(joinKey(s.prefix, key))

	props, err := blob.GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return output.StorageObject{}, domain.ErrObjectNotFound
		}
		return output.StorageObject{}, err
	}

	obj := output.StorageObject{Key: key}
	if props.ContentLength != nil {
		obj.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		obj.LastModified = props.LastModified.Unix()
	}
	if props.ETag != nil {
		obj.ETag = strings.Trim(string(*props.ETag), `"`)
	}
	return obj, nil
}

// Download fetches key into dest.
func (s *AzureStorage) Download(ctx context.Context, key string, dest string) error {
	resp, err := s.client.DownloadStream(ctx, s.container, joinKey(s.prefix, key), nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return domain.ErrObjectNotFound
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return writeFile(dest, resp.Body)
}
