package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/ugoite/ieapp/internal/ieerr"
)

// azblobStore backs azblob://account/container/root URIs using Azure AD
// credentials sourced from the environment, the same pattern as s3Store.
type azblobStore struct {
	containerClient *container.Client
	root            string
}

func newAzblobStore(_ context.Context, rest string) (*azblobStore, error) {
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 {
		return nil, ieerr.Transport(errors.New("malformed URI"), "azblob:// URI must be account/container[/root]")
	}
	account, containerName := parts[0], parts[1]
	root := ""
	if len(parts) == 3 {
		root = parts[2]
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, ieerr.Transport(err, "load Azure credential")
	}
	serviceURL := "https://" + account + ".blob.core.windows.net/"
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, ieerr.Transport(err, "create azblob client")
	}
	return &azblobStore{containerClient: client.ServiceClient().NewContainerClient(containerName), root: root}, nil
}

func (a *azblobStore) key(path string) string { return joinPrefix(a.root, path) }

func (a *azblobStore) Read(ctx context.Context, path string) ([]byte, error) {
	blob := a.containerClient.NewBlobClient(a.key(path))
	resp, err := blob.DownloadStream(ctx, nil)
	if err != nil {
		return nil, ieerr.NotFound("object not found: %s", path)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ieerr.Transport(err, "read body %s", path)
	}
	return data, nil
}

func (a *azblobStore) Write(ctx context.Context, path string, data []byte) error {
	blob := a.containerClient.NewBlockBlobClient(a.key(path))
	_, err := blob.UploadStream(ctx, bytes.NewReader(data), nil)
	if err != nil {
		return ieerr.Transport(err, "upload %s", path)
	}
	return nil
}

func (a *azblobStore) Delete(ctx context.Context, path string) error {
	blob := a.containerClient.NewBlobClient(a.key(path))
	_, err := blob.Delete(ctx, nil)
	if err != nil {
		return ieerr.Transport(err, "delete %s", path)
	}
	return nil
}

func (a *azblobStore) Exists(ctx context.Context, path string) (bool, error) {
	blob := a.containerClient.NewBlobClient(a.key(path))
	_, err := blob.GetProperties(ctx, nil)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// CreateDir is a no-op: Azure Blob Storage has no real directories.
func (a *azblobStore) CreateDir(_ context.Context, _ string) error { return nil }

func (a *azblobStore) List(ctx context.Context, prefix string) ([]ListEntry, error) {
	key := joinPrefix(a.root, prefix)
	if key != "" {
		key += "/"
	}
	pager := a.containerClient.NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{
		Prefix: &key,
	})
	var out []ListEntry
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, ieerr.Transport(err, "list %s", prefix)
		}
		for _, item := range page.Segment.BlobItems {
			name := strings.TrimPrefix(*item.Name, key)
			out = append(out, ListEntry{Name: name, Mode: ModeFile})
		}
		for _, pre := range page.Segment.BlobPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(*pre.Name, key), "/")
			out = append(out, ListEntry{Name: name, Mode: ModeDir})
		}
	}
	return out, nil
}

func (a *azblobStore) RemoveAll(ctx context.Context, prefix string) error {
	entries, err := a.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, e := range entries {
		sub := prefix + "/" + e.Name
		if e.Mode == ModeDir {
			if err := a.RemoveAll(ctx, sub); err != nil {
				return err
			}
			continue
		}
		if err := a.Delete(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}
