// Package errors provides coded, actionable errors for the dropzone CLI.
//
// Each code maps to a category, a short message, a longer detail, an
// optional hint and a documentation link:
//   - E001-E019: intake (ceiling, nothing to upload, busy, closed)
//   - E020-E039: authentication
//   - E040-E059: transport and server rejections
//   - E060-E079: existing-file storage
//   - E120-E139: configuration
//   - E140-E159: CLI
//
// # Usage
//
//	err := errors.New("E120").
//	    WithLocation("dropzone.yaml", 7, 3).
//	    WithDetail("yaml: line 7: did not find expected key")
//
//	errors.PrintError(err)
//	// ERROR E120: Invalid configuration file
//	//
//	//   dropzone.yaml:7:3
//	//
//	//       5 │ upload:
//	//       6 │   maxFiles: 5
//	//   →   7 │   accept types: [image/*]
//	//         │   ^
//	//
//	//   yaml: line 7: did not find expected key
//
// Pipeline errors from package upload map onto codes with FromUpload.
package errors
