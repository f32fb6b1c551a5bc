// Package auth supplies bearer tokens to the upload pipeline and checks
// them on the reference endpoint.
//
// # Token sources
//
// Every source implements Token(ctx) (string, error) and reports a missing
// token as ErrNoToken:
//
//	src := auth.Chain{
//	    auth.Env("DROPZONE_TOKEN"),
//	    auth.SessionFile{Path: auth.DefaultSessionPath()},
//	    auth.NewRedis("localhost:6379", "", 0, "dropzone:token"),
//	}
//	u, _ := upload.New(cfg, upload.WithTokenSource(auth.WithExpiryCheck(src, 30*time.Second)))
//
// WithExpiryCheck reads the exp claim of JWTs (without verifying the
// signature) and reports expired tokens as ErrSessionExpired, so the
// pipeline refuses to upload before any request is sent.
//
// # Server side
//
// Guard is net/http middleware requiring a bearer token and, optionally,
// an X-API-KEY header:
//
//	r.Use(auth.Guard{
//	    Validate: auth.AnyOf(auth.StaticTokens("dev"), auth.HMACTokens(secret)),
//	    APIKey:   "k",
//	}.Middleware)
//
// Rejected requests get 401 (or 403 for a wrong API key) with a JSON
// {"message": "..."} body, which the uploader surfaces verbatim.
package auth
