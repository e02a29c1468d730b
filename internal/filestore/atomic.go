// Package filestore keeps the event table, the registration ledger, the
// invoice counter and the commit journal in plain files.
//
// Every mutation reads the whole file, changes it in memory and writes it
// back through a temporary file that is synced and renamed into place.
// Mutations hold the in-process guard for the file and an exclusive flock on
// a sidecar ".lock" file, so several processes may share one data directory.
package filestore

import (
	"errors"
	"os"
)

// readOptional returns the file content, or nil when the file does not exist.
func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func lockPath(path string) string {
	return path + ".lock"
}

func guardKey(path string) string {
	return "file:" + path
}

// errUnchanged tells a write cycle to skip saving.
var errUnchanged = errors.New("unchanged")
