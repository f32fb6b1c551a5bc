package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

const defaultContentType = "application/octet-stream"

// Upload submits every pending local entry in one multipart request.
//
// The token is fetched before anything changes; without one Upload fails
// with ErrAuthMissing and sends no request. Otherwise all selected entries
// move to StatusUploading, and then all to StatusSuccess or all to
// StatusError depending on the outcome. There are no retries.
func (u *Uploader) Upload(ctx context.Context) ([]FileResult, error) {
	ctx, span := u.tracer.Start(ctx, "upload.Upload")
	defer span.End()

	if err := u.precheck(); err != nil {
		span.RecordError(err)
		u.fail(err)
		return nil, err
	}

	token, err := u.token(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "auth missing")
		u.logger.Warn("upload blocked", "error", err)
		u.fail(err)
		return nil, err
	}

	entries, err := u.registry.beginUpload()
	if err != nil {
		span.RecordError(err)
		u.fail(err)
		return nil, err
	}

	var total int64
	for _, e := range entries {
		total += e.Size
	}
	span.SetAttributes(
		attribute.Int("upload.files", len(entries)),
		attribute.Int64("upload.bytes", total),
	)
	u.logger.Info("upload started", "files", len(entries), "bytes", total)

	start := time.Now()
	results, err := u.send(ctx, token, entries)
	elapsed := time.Since(start)
	u.observer.UploadFinished(len(entries), total, elapsed, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		u.settle(entries, nil, err)
		u.logger.Error("upload failed", "files", len(entries), "error", err, "duration", elapsed)
		u.fail(err)
		return nil, err
	}

	u.settle(entries, results, nil)
	u.logger.Info("upload complete", "files", len(entries), "results", len(results), "duration", elapsed)
	u.notifier.Notify(LevelSuccess, successMessage(len(entries)))
	if u.cfg.OnSuccess != nil {
		u.cfg.OnSuccess(results)
	}
	return results, nil
}

// precheck refuses an upload that has nothing to do without touching
// the token source.
func (u *Uploader) precheck() error {
	snap := u.registry.Snapshot()
	if u.registry.Closed() {
		return ErrClosed
	}
	if snap.Uploading {
		return ErrBusy
	}
	for _, e := range snap.Locals() {
		if e.Status == StatusPending {
			return nil
		}
	}
	return ErrNothingToUpload
}

func (u *Uploader) token(ctx context.Context) (string, error) {
	token, err := u.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthMissing, err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrAuthMissing
	}
	return token, nil
}

// settle moves every submitted entry to its terminal status. On success
// results are matched to entries by position; entries beyond the end of
// results keep their local name and size.
func (u *Uploader) settle(entries []LocalEntry, results []FileResult, err error) {
	outcomes := make(map[string]outcome, len(entries))
	for i, e := range entries {
		if err != nil {
			outcomes[e.ID] = outcome{status: StatusError, err: Message(err)}
			continue
		}
		res := FileResult{
			Filename: SanitizeFilename(e.Name),
			Size:     e.Size,
			Type:     e.Type,
		}
		if i < len(results) {
			r := results[i]
			res.URL = r.URL
			if r.Filename != "" {
				res.Filename = r.Filename
			}
			if r.Size > 0 {
				res.Size = r.Size
			}
			if r.Type != "" {
				res.Type = r.Type
			}
		}
		outcomes[e.ID] = outcome{status: StatusSuccess, result: &res}
	}
	u.registry.finishUpload(outcomes)
}

// send performs the request. Panics are converted to transport errors so
// nothing escapes the pipeline.
func (u *Uploader) send(ctx context.Context, token string, entries []LocalEntry) (results []FileResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = &TransportError{Err: fmt.Errorf("upload: unexpected failure: %v", r)}
		}
	}()

	if u.cfg.BaseURL == "" {
		return nil, &TransportError{Err: errors.New("upload: no base URL configured")}
	}

	var configs []byte
	if len(u.cfg.FileConfigs) > 0 {
		configs, err = json.Marshal(u.cfg.FileConfigs)
		if err != nil {
			return nil, &TransportError{Err: fmt.Errorf("upload: encode file configs: %w", err)}
		}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				pw.CloseWithError(fmt.Errorf("upload: unexpected failure: %v", r))
			}
		}()
		pw.CloseWithError(writeParts(mw, entries, configs))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.BaseURL+UploadPath, pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if u.cfg.APIKey != "" {
		req.Header.Set("X-API-KEY", u.cfg.APIKey)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("upload: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServerError{Status: resp.StatusCode, Message: serverMessage(resp, body)}
	}

	results, err = parseResults(body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return results, nil
}

// writeParts streams one "files[]" part per entry followed by the optional
// "fileConfigs" field.
func writeParts(mw *multipart.Writer, entries []LocalEntry, configs []byte) error {
	for _, e := range entries {
		if err := writeFilePart(mw, e); err != nil {
			return err
		}
	}
	if len(configs) > 0 {
		if err := mw.WriteField("fileConfigs", string(configs)); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeFilePart(mw *multipart.Writer, e LocalEntry) error {
	if e.Source == nil {
		return fmt.Errorf("upload: %s has no source", e.Name)
	}
	typ := baseType(e.Type)
	if typ == "" {
		typ = defaultContentType
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files[]"; filename="%s"`, SanitizeFilename(e.Name)))
	h.Set("Content-Type", typ)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}

	rc, err := e.Source.Open()
	if err != nil {
		return fmt.Errorf("upload: open %s: %w", e.Name, err)
	}
	defer rc.Close()
	if _, err := io.Copy(part, rc); err != nil {
		return fmt.Errorf("upload: read %s: %w", e.Name, err)
	}
	return nil
}

func successMessage(n int) string {
	if n == 1 {
		return "1 file uploaded successfully"
	}
	return fmt.Sprintf("%d files uploaded successfully", n)
}
