package upload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// UnmarshalJSON accepts "link" for url and "mimeType" for type.
func (r *FileResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		URL      string      `json:"url"`
		Link     string      `json:"link"`
		Type     string      `json:"type"`
		MIMEType string      `json:"mimeType"`
		Size     json.Number `json:"size"`
		Filename string      `json:"filename"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = FileResult{
		URL:      firstNonEmpty(raw.URL, raw.Link),
		Type:     firstNonEmpty(raw.Type, raw.MIMEType),
		Filename: raw.Filename,
	}
	if raw.Size != "" {
		if n, err := raw.Size.Int64(); err == nil {
			r.Size = n
		} else if f, err := raw.Size.Float64(); err == nil {
			r.Size = int64(f)
		}
	}
	return nil
}

// parseResults decodes {"data": [...]} or {"data": {"key": {...}}}. Object
// members are returned in document order.
func parseResults(body []byte) ([]FileResult, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("upload: decode response: %w", err)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	switch data[0] {
	case '[':
		var out []FileResult
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("upload: decode response data: %w", err)
		}
		return out, nil
	case '{':
		return decodeOrderedObject(data)
	}
	return nil, errors.New("upload: response data is neither an array nor an object")
}

func decodeOrderedObject(data []byte) ([]FileResult, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("upload: decode response data: %w", err)
	}
	var out []FileResult
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("upload: decode response key: %w", err)
		}
		var r FileResult
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("upload: decode response data: %w", err)
		}
		out = append(out, r)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("upload: decode response data: %w", err)
	}
	return out, nil
}

// serverMessage extracts "message" or "error" from a failure body and falls
// back to the status line.
func serverMessage(resp *http.Response, body []byte) string {
	var payload struct {
		Message json.RawMessage `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		for _, raw := range []json.RawMessage{payload.Message, payload.Error} {
			if msg := rawText(raw); msg != "" {
				return msg
			}
		}
	}

	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, text)
}

// rawText returns a JSON string value, or the message field of a nested object.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &nested) == nil {
		return strings.TrimSpace(nested.Message)
	}
	return ""
}
