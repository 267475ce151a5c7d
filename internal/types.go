package internal

import "time"

// ConversionRequest identifies one Pascal source submitted for conversion.
type ConversionRequest struct {
	ID         string    `json:"id"`
	SourceName string    `json:"source_name"`
	SourceText string    `json:"source_text"`
	Model      string    `json:"model"`
	Timestamp  time.Time `json:"timestamp"`
}
