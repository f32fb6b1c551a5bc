// Package existing loads the files a server already holds so they can be
// shown next to new uploads.
//
// Sources:
//
//   - File: a JSON or YAML document (a list, or {"files": [...]})
//   - S3: objects under a bucket prefix, with presigned GET URLs
//   - MinIO: the same against a MinIO deployment via minio-go
//   - HTTP: a GET endpoint answering like the upload response
//   - Static: an in-memory list
//   - Multi: several sources concatenated
//
// Load feeds a Lister into an uploader:
//
//	n, err := existing.Load(ctx, existing.File{Path: "existing.yaml"}, u)
package existing
