// Package toast provides feedback notifications for dropzone.
//
// A toast is an event named EventName with a small map payload, sent
// through an Emitter. The CLI uses a Terminal emitter; the live hub
// forwards the same events to connected browsers, so one notification
// reaches every surface.
//
// # Client-Side Handler
//
// Browsers connected to the live hub receive:
//
//	{"event": "dropzone:toast", "data": {"level": "error", "message": "disk full"}}
//
// and may render it with any toast library.
//
// # Usage
//
//	out := toast.Multi{toast.NewTerminal(os.Stderr, true), hub}
//	toast.Success(out, "3 files uploaded")
//
// The upload pipeline reports through a Notifier:
//
//	u, _ := upload.New(cfg, upload.WithNotifier(toast.Notifier{Emitter: out}))
package toast
