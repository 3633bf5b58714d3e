package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"orbit/internal/logging"
)

// Azure stores blobs in Azure Blob Storage containers.
type Azure struct {
	client *azblob.Client
	logger *slog.Logger
}

var _ Store = (*Azure)(nil)

// NewAzure connects using the given connection string, falling back to the
// AZURE_STORAGE_CONNECTION_STRING environment variable.
func NewAzure(connectionString string, logger *slog.Logger) (*Azure, error) {
	if connectionString == "" {
		connectionString = os.Getenv("AZURE_STORAGE_CONNECTION_STRING")
	}
	if connectionString == "" {
		return nil, errors.New("azure blob store needs a connection string")
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("connect azure blob storage: %w", err)
	}
	return &Azure{
		client: client,
		logger: logging.Default(logger).With("component", "blobstore-azure"),
	}, nil
}

func (a *Azure) Put(ctx context.Context, container, name string, data []byte, overwrite bool) error {
	if _, err := a.client.CreateContainer(ctx, container, nil); err != nil &&
		!bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("ensure container %s: %w", container, err)
	}
	if !overwrite {
		if _, err := a.Get(ctx, container, name); err == nil {
			return ErrAlreadyExists
		}
	}
	if _, err := a.client.UploadBuffer(ctx, container, name, data, nil); err != nil {
		return fmt.Errorf("upload blob %s/%s: %w", container, name, err)
	}
	a.logger.Debug("uploaded blob", "container", container, "name", name, "bytes", len(data))
	return nil
}

func (a *Azure) Get(ctx context.Context, container, name string) ([]byte, error) {
	resp, err := a.client.DownloadStream(ctx, container, name, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("download blob %s/%s: %w", container, name, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read blob %s/%s: %w", container, name, err)
	}
	return data, nil
}

func (a *Azure) Close() error { return nil }
