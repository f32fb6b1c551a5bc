package existing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vango-dev/dropzone/pkg/upload"
)

// HTTP fetches the file list from an endpoint that answers like the
// upload response: {"data": [{url, type, size, filename}, ...]}.
type HTTP struct {
	URL    string
	Tokens upload.TokenSource // optional
	Client *http.Client
}

// List issues a GET and converts each result into a RemoteFile keyed by
// its URL.
func (h HTTP) List(ctx context.Context) ([]upload.RemoteFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("existing: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if h.Tokens != nil {
		tok, err := h.Tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("existing: token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("existing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil, fmt.Errorf("existing: GET %s: %s", h.URL, resp.Status)
	}

	var body struct {
		Data []upload.FileResult `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("existing: decode %s: %w", h.URL, err)
	}

	files := make([]upload.RemoteFile, len(body.Data))
	for i, r := range body.Data {
		files[i] = upload.RemoteFile{ID: r.URL, URL: r.URL, Type: r.Type, Size: r.Size, Filename: r.Filename}
	}
	return files, nil
}
