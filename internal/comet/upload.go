package comet

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
)

// UploadOfflineArchive streams one archive to the service. force makes the
// service accept an archive whose offline id it has already seen.
func (c *Client) UploadOfflineArchive(ctx context.Context, archivePath string, force bool) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("file", filepath.Base(archivePath))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = writer.Close()
		}
		pw.CloseWithError(err)
	}()

	query := url.Values{"overwrite": {strconv.FormatBool(force)}}
	req, err := http.NewRequest(http.MethodPost, c.serverURL+clientPrefix+"upload/offline?"+query.Encode(), pr)
	if err != nil {
		_ = pr.Close()
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := c.do(ctx, req, nil); err != nil {
		_ = pr.CloseWithError(err)
		return fmt.Errorf("upload %s: %w", filepath.Base(archivePath), err)
	}
	return nil
}
