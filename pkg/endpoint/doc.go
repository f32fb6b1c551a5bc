// Package endpoint is a reference server for the upload pipeline. It
// accepts the multipart body the uploader sends to
// POST /app/file/upload/many, stores each file, and answers with
// {"data": [{url, type, size, filename}, ...]} in request order.
//
// Errors are JSON {"message": "..."} bodies, which the uploader shows to
// the user as-is.
//
// Usage:
//
//	store, _ := endpoint.NewDiskStore("./uploads", 0)
//	srv := endpoint.New(store, endpoint.Options{
//	    Middleware: []func(http.Handler) http.Handler{guard.Middleware},
//	})
//	http.ListenAndServe(":8080", srv)
//
// Stored files are served at GET /files/{id} and listed at
// GET /app/file/list.
package endpoint
