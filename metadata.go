package scraper

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const MetadataFileExtension = ".meta"

// ExportMetadata describes an export file. It is saved next to the file.
type ExportMetadata struct {
	Kind         string       `json:"kind"`
	Filter       SearchFilter `json:"filter"`
	TotalCount   int          `json:"total_count"`
	TotalPages   int          `json:"total_pages"`
	Succeeded    int          `json:"succeeded"`
	Skipped      int          `json:"skipped"`
	SkippedPages int          `json:"skipped_pages,omitempty"`
	Rows         int          `json:"rows"`
	Columns      []string     `json:"columns"`
	Status       string       `json:"status"`
	Cancelled    bool         `json:"cancelled,omitempty"`
	GeneratedAt  time.Time    `json:"generated_at"`
}

// MetadataFor summarizes a finished job.
func MetadataFor(job *ExportJob) ExportMetadata {
	metadata := ExportMetadata{
		Kind:         job.Filter.Kind.String(),
		Filter:       job.Filter,
		TotalCount:   job.Cursor.TotalCount,
		TotalPages:   job.Cursor.TotalPages,
		Succeeded:    job.Succeeded,
		Skipped:      job.Skipped,
		SkippedPages: job.SkippedPages,
		Status:       job.Status,
		Cancelled:    job.Cancelled,
		GeneratedAt:  time.Now(),
	}
	if job.Table != nil {
		metadata.Rows = len(job.Table.Rows)
		metadata.Columns = job.Table.Columns
	}
	return metadata
}

// SaveExportMetadata writes metadata to filename + MetadataFileExtension.
func SaveExportMetadata(filename string, metadata ExportMetadata) error {
	metadataFilename := filename + MetadataFileExtension
	metadataBytes, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %v", err)
	}
	err = os.WriteFile(metadataFilename, metadataBytes, os.FileMode(0644))
	if err != nil {
		return fmt.Errorf("failed to write metadata file %s: %v", metadataFilename, err)
	}
	return nil
}

func LoadExportMetadata(filename string) (ExportMetadata, error) {
	var metadata ExportMetadata
	metadataFilename := filename + MetadataFileExtension
	metadataBytes, err := os.ReadFile(metadataFilename)
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file %s: %v", metadataFilename, err)
	}
	err = json.Unmarshal(metadataBytes, &metadata)
	if err != nil {
		return metadata, fmt.Errorf("failed to parse metadata file %s: %v", metadataFilename, err)
	}
	return metadata, nil
}
