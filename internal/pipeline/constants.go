package pipeline

// Defaults for statement parsing.
const (
	// DefaultModelName is the default Gemini model used for PDF and image statements.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultUserID owns uploads that carry no explicit user.
	DefaultUserID = "local-user"
)

// File types recognised by the ingest pipeline.
const (
	FileTypeCSV  = "text/csv"
	FileTypePDF  = "application/pdf"
	FileTypePNG  = "image/png"
	FileTypeJPEG = "image/jpeg"
	FileTypeText = "text/plain"
)

// Step names reported through progress callbacks and stored on jobs.
const (
	StepRead      = "read"
	StepArchive   = "archive"
	StepParse     = "parse"
	StepSummarize = "summarize"
	StepPublish   = "publish"
	StepPersist   = "persist"
)

// DuplicateMessage is shown when the backend already holds a statement with the same name.
const DuplicateMessage = "Statement '%s' already exists. Skipping upload."
