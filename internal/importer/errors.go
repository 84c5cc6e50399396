package importer

import "errors"

var (
	// ErrFileNotFound is returned when the import path does not exist.
	ErrFileNotFound = errors.New("import file not found")

	// ErrDecodeFailure is returned when no encoding parses the file.
	ErrDecodeFailure = errors.New("file could not be decoded with any supported encoding")

	// ErrRowRejected is returned by Map for rows without a well-formed RNC.
	ErrRowRejected = errors.New("row rejected")

	// ErrImportInProgress is returned when another import holds the runner.
	ErrImportInProgress = errors.New("an import is already in progress")
)
