package adventure

import (
	"encoding/json"
	"fmt"
	"os"
)

// Document is the on-disk form of an authored adventure.
type Document struct {
	Version     int    `json:"version"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Graph
}

// LoadDocument loads an adventure document from a JSON file. It does not
// validate the graph.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read adventure file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse adventure JSON: %w", err)
	}

	if doc.Version != 1 {
		return nil, fmt.Errorf("unsupported adventure version: %d", doc.Version)
	}

	return &doc, nil
}
