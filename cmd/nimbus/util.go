package main

import (
	"fmt"
	"io"
	"os"
)

// readInput reads path, or r when path is "-".
func readInput(r io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(r)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
