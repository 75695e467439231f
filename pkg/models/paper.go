package models

import (
	"github.com/google/uuid"
)

// PaperContent is the structured content of a paper as produced by the
// upstream extraction service. Fetched read-only once per analysis.
type PaperContent struct {
	PaperID      uuid.UUID      `json:"paper_id"`
	ExtractionID uuid.UUID      `json:"extraction_id"`
	Title        string         `json:"title"`
	Abstract     string         `json:"abstract"`
	Sections     []PaperSection `json:"sections"`
	Figures      []PaperFigure  `json:"figures"`
	Tables       []PaperTable   `json:"tables"`
	Equations    []string       `json:"equations,omitempty"`
	References   []string       `json:"references,omitempty"`
	Conclusion   string         `json:"conclusion,omitempty"`
}

// PaperSection is one extracted section with its paragraph texts in order.
type PaperSection struct {
	Title      string   `json:"title"`
	Type       string   `json:"type,omitempty"`
	Paragraphs []string `json:"paragraphs"`
}

type PaperFigure struct {
	Label   string `json:"label,omitempty"`
	Caption string `json:"caption"`
}

type PaperTable struct {
	Label   string `json:"label,omitempty"`
	Caption string `json:"caption"`
}
