// Package upload is the client side of the file upload pipeline.
//
// Files enter through Intake, are validated against a Policy and previewed,
// and are kept in a Registry next to the files the server already holds.
// Upload sends every pending file in one multipart request to
// {BaseURL}/app/file/upload/many and reconciles the response into per-file
// status.
//
// # Entries
//
// A registry entry is either a LocalEntry (picked in this session) or a
// RemoteEntry (already on the server). Use Match to handle both:
//
//	name := upload.Match(e,
//	    func(l upload.LocalEntry) string { return l.Name + " (" + l.Status.String() + ")" },
//	    func(r upload.RemoteEntry) string { return r.Filename },
//	)
//
// Local entries move pending -> uploading -> success or error, never back.
//
// # Usage
//
//	u, err := upload.New(upload.Config{
//	    BaseURL:  "https://api.example.com",
//	    Multiple: true,
//	    MaxFiles: 5,
//	    Policy: upload.Policy{
//	        MaxSizeMB: 10,
//	        Accept:    upload.Accept{Types: []string{"image/*"}, Extensions: []string{".pdf"}},
//	    },
//	}, upload.WithTokenSource(tokens))
//	if err != nil {
//	    return err
//	}
//	defer u.Close()
//
//	if err := u.Intake(ctx, files); err != nil {
//	    return err // *IntakeRejectedError: nothing was admitted
//	}
//	results, err := u.Upload(ctx)
//
// # Observing state
//
// Every registry mutation publishes one Snapshot. A UI subscribes instead
// of keeping its own copy:
//
//	cancel := u.Subscribe(func(s upload.Snapshot) { render(s.Entries) })
//	defer cancel()
//
// # Previews
//
// JPEG, PNG, GIF and WebP files get a base64 data URI preview, read under a
// 5 second timeout. With a BlobStore the preview is held in memory under a
// "blob:" URI instead and is revoked when the entry is removed or the
// uploader is closed.
package upload
