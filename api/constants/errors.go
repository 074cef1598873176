package constants

import "fmt"

// ============================================================================
// IMPORT ERRORS
// ============================================================================

const (
	ErrFileRequired        = "A settlement file is required (form field 'file' or 'archivo')"
	ErrFileTooLarge        = "The uploaded file exceeds the %d MB limit"
	ErrFileReadFailed      = "Failed to read the uploaded file. Please try again"
	ErrChecksumMismatch    = "The uploaded file does not match the announced checksum"
	ErrUnknownProvider     = "Unknown provider %q. Supported providers: pagofacil, seac, cobroexpress"
	ErrUnknownMode         = "Unknown import mode %q for %s. Supported modes: %s"
	ErrHeaderNotFound      = "Could not find the header row of the spreadsheet. Check that the file is a Cobro Express export"
	ErrUnreadableFile      = "The file could not be read as a spreadsheet or delimited text"
	ErrImportFailed        = "Import failed. Please try again"
	MsgImportCompleted     = "Import completed: %d inserted, %d updated, %d duplicates, %d denied, %d errors"
	ErrInvalidLimit        = "limit must be a positive number"
	ErrBatchesQueryFailed  = "Failed to list import batches"
	ErrEventsUnavailable   = "Import events are not available"
)

// ============================================================================
// CONFIGURATION TREE ERRORS
// ============================================================================

const (
	ErrBranchNotFound     = "Branch not found"
	ErrRegisterNotFound   = "Register not found"
	ErrTerminalNotFound   = "Terminal not found"
	ErrUnknownConfigKind  = "Unknown configuration kind %q. Use branches, registers or terminals"
	ErrStillLinked        = "Cannot delete: it still has linked data."
	ErrDuplicateTerminal  = "Terminal %s is already registered"
	ErrDuplicateRecord    = "A record with the same values already exists"
	ErrParentMissing      = "The referenced parent record does not exist"
	ErrValidationFailed   = "Validation failed: %s"
	ErrConfigTreeFailed   = "Failed to load the configuration tree"
)

// ============================================================================
// REPORT ERRORS
// ============================================================================

const (
	ErrInvalidDate      = "Invalid date %q, expected YYYY-MM-DD"
	ErrInvalidBranch    = "branch must be a numeric id"
	ErrReportFailed     = "Failed to build the report"
	ErrReportExport     = "Failed to export the report"
)

// Formatf is a short alias for building messages from the templates above.
func Formatf(template string, args ...interface{}) string {
	return fmt.Sprintf(template, args...)
}
