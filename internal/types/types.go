package types

import "time"

// Output modes
const (
	ModeMarkdown  = "markdown"
	ModeClipboard = "clipboard"
)

// Cross-context message kinds exchanged between the dispatcher and a page
// worker. The COMPLETE/FAILED names are legacy synonyms kept for older
// clients; they are normalized at the boundary by NormalizeKind.
const (
	MsgStartExtraction    = "START_EXTRACTION"
	MsgExtractionSuccess  = "EXTRACTION_SUCCESS"
	MsgExtractionError    = "EXTRACTION_ERROR"
	MsgExtractionComplete = "EXTRACTION_COMPLETE"
	MsgExtractionFailed   = "EXTRACTION_FAILED"
)

// Error codes carried on ExtractError
const (
	CodeNoVideo          = "NO_VIDEO"
	CodeNoTitle          = "NO_TITLE"
	CodeNoTranscript     = "NO_TRANSCRIPT"
	CodeNetworkTimeout   = "NETWORK_TIMEOUT"
	CodeAlreadyRunning   = "ALREADY_RUNNING"
	CodeOutputFailed     = "OUTPUT_FAILED"
	CodeExtractionFailed = "EXTRACTION_FAILED"
)

// NormalizeKind maps legacy result message names onto their modern
// equivalents. Unknown kinds pass through unchanged.
func NormalizeKind(kind string) string {
	switch kind {
	case MsgExtractionComplete:
		return MsgExtractionSuccess
	case MsgExtractionFailed:
		return MsgExtractionError
	}
	return kind
}

// StartExtraction is the command sent to a page worker.
type StartExtraction struct {
	Mode string `json:"mode,omitempty"`
}

// ExtractError is a machine-readable extraction failure.
type ExtractError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Mode    string `json:"mode,omitempty"`
}

func (e *ExtractError) Error() string {
	return e.Code + ": " + e.Message
}

// NewExtractError builds an ExtractError with the given code.
func NewExtractError(code, message string) *ExtractError {
	return &ExtractError{Code: code, Message: message}
}

// Result is the outcome event emitted by a page worker.
type Result struct {
	Kind     string        `json:"kind"`
	Mode     string        `json:"mode,omitempty"`
	VideoID  string        `json:"video_id,omitempty"`
	Filename string        `json:"filename,omitempty"`
	Err      *ExtractError `json:"error,omitempty"`
}

// Metadata holds the video fields shown at the top of the exported document.
// Title is mandatory; everything else degrades to empty when unavailable.
type Metadata struct {
	Title       string
	ChannelName string
	PublishDate string
	Description string
	ChannelURL  string
}

// ExtractionRecord is a persisted row describing a completed extraction.
type ExtractionRecord struct {
	OpID      string    `json:"op_id"`
	VideoID   string    `json:"video_id"`
	Title     string    `json:"title"`
	Channel   string    `json:"channel"`
	Mode      string    `json:"mode"`
	LocalPath string    `json:"local_path"`
	DriveURL  string    `json:"drive_url,omitempty"`
	WordCount int       `json:"word_count"`
	CreatedAt time.Time `json:"created_at"`
}
