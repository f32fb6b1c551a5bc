package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
	DocURL     string
}

const docBase = "https://github.com/vango-dev/dropzone/blob/main/docs/errors.md#"

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Intake Errors (E001-E019)
	// ============================================

	"E001": {
		Category:   CategoryIntake,
		Message:    "Too many files",
		Detail:     "The batch would push the number of files past the configured maximum. No file from the batch was added.",
		Suggestion: "Remove some files or raise upload.maxFiles",
		DocURL:     docBase + "e001",
	},
	"E002": {
		Category:   CategoryIntake,
		Message:    "Nothing to upload",
		Detail:     "There are no pending files. Files that failed validation are never sent.",
		Suggestion: "Check the validation errors listed next to each file",
		DocURL:     docBase + "e002",
	},
	"E003": {
		Category: CategoryIntake,
		Message:  "Upload in progress",
		Detail:   "Files can't be added or sent while an upload is running.",
		DocURL:   docBase + "e003",
	},
	"E004": {
		Category: CategoryIntake,
		Message:  "Uploader closed",
		DocURL:   docBase + "e004",
	},

	// ============================================
	// Auth Errors (E020-E039)
	// ============================================

	"E020": {
		Category:   CategoryAuth,
		Message:    "Authentication token not found",
		Detail:     "No bearer token is available, so no request was sent.",
		Suggestion: "Run 'dropzone login --token <token>' or set DROPZONE_TOKEN",
		DocURL:     docBase + "e020",
	},
	"E021": {
		Category:   CategoryAuth,
		Message:    "Session expired",
		Detail:     "The stored token has expired.",
		Suggestion: "Run 'dropzone login' again",
		DocURL:     docBase + "e021",
	},

	// ============================================
	// Transport and Server Errors (E040-E059)
	// ============================================

	"E040": {
		Category:   CategoryTransport,
		Message:    "Upload request failed",
		Detail:     "The request could not be sent or the response could not be read.",
		Suggestion: "Check endpoint.baseUrl and your network connection",
		DocURL:     docBase + "e040",
	},
	"E041": {
		Category: CategoryServer,
		Message:  "Server rejected upload",
		Detail:   "The endpoint answered with a non-2xx status.",
		DocURL:   docBase + "e041",
	},

	// ============================================
	// Storage Errors (E060-E079)
	// ============================================

	"E060": {
		Category:   CategoryStorage,
		Message:    "Existing files could not be listed",
		Suggestion: "Check the existing section of the configuration and the storage credentials",
		DocURL:     docBase + "e060",
	},
	"E061": {
		Category: CategoryStorage,
		Message:  "Storage unavailable",
		Detail:   "The upload directory could not be created or read.",
		DocURL:   docBase + "e061",
	},

	"E099": {
		Category: CategoryTransport,
		Message:  "Upload failed",
		DocURL:   docBase + "e099",
	},

	// ============================================
	// Config Errors (E120-E139)
	// ============================================

	"E120": {
		Category:   CategoryConfig,
		Message:    "Invalid configuration file",
		Detail:     "The configuration file could not be read or parsed.",
		Suggestion: "Check that the file is valid JSON or YAML",
		DocURL:     docBase + "e120",
	},
	"E121": {
		Category:   CategoryConfig,
		Message:    "Invalid accept policy",
		Detail:     "The accept policy lists no types or extensions, so every file would be rejected.",
		Suggestion: "Set upload.accept.any to true or list types such as \"image/*\"",
		DocURL:     docBase + "e121",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		DocURL:   docBase + "e122",
	},
	"E123": {
		Category: CategoryConfig,
		Message:  "Invalid environment override",
		Detail:   "A DROPZONE_* environment variable could not be parsed.",
		DocURL:   docBase + "e123",
	},

	// ============================================
	// CLI Errors (E140-E159)
	// ============================================

	"E140": {
		Category: CategoryCLI,
		Message:  "File not found",
		Detail:   "An input path does not exist or is not a regular file.",
		DocURL:   docBase + "e140",
	},
	"E141": {
		Category:   CategoryCLI,
		Message:    "No configuration found",
		Detail:     "No dropzone.json or dropzone.yaml was found.",
		Suggestion: "Pass --config or create dropzone.yaml",
		DocURL:     docBase + "e141",
	},
	"E142": {
		Category: CategoryCLI,
		Message:  "Server failed",
		Detail:   "The HTTP server stopped with an error.",
		DocURL:   docBase + "e142",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
