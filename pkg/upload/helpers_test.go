package upload_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"
)

// fakeSource is a Source with a declared size independent of its content.
type fakeSource struct {
	name    string
	typ     string
	size    int64
	data    []byte
	openErr error
	block   bool
}

func (s *fakeSource) Name() string { return s.name }
func (s *fakeSource) Type() string { return s.typ }

func (s *fakeSource) Size() int64 {
	if s.size > 0 {
		return s.size
	}
	return int64(len(s.data))
}

func (s *fakeSource) Open() (io.ReadCloser, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	if s.block {
		return newBlockingReader(), nil
	}
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

// blockingReader never yields data; Read returns once Close is called.
type blockingReader struct {
	done chan struct{}
	once sync.Once
}

func newBlockingReader() *blockingReader {
	return &blockingReader{done: make(chan struct{})}
}

func (r *blockingReader) Read([]byte) (int, error) {
	<-r.done
	return 0, errors.New("closed")
}

func (r *blockingReader) Close() error {
	r.once.Do(func() { close(r.done) })
	return nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func imageSource(t *testing.T, name string) *fakeSource {
	t.Helper()
	return &fakeSource{name: name, typ: "image/png", data: pngBytes(t, 4, 4)}
}

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu     sync.Mutex
	levels []string
	msgs   []string
}

func (n *recordingNotifier) Notify(level, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.levels = append(n.levels, level)
	n.msgs = append(n.msgs, message)
}

func (n *recordingNotifier) last() (string, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.msgs) == 0 {
		return "", ""
	}
	return n.levels[len(n.levels)-1], n.msgs[len(n.msgs)-1]
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}
