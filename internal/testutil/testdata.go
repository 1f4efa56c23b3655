// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
)

// Path returns the absolute path of a file under internal/testutil/testdata.
func Path(filename string) string {
	_, currentFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(currentFile), "testdata", filename)
}

// LoadJSON reads and unmarshals a testdata JSON file into target.
func LoadJSON(filename string, target any) error {
	data, err := os.ReadFile(Path(filename))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
