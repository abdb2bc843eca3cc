package models

import (
	"path"
	"strings"
	"time"
)

// DeclaredType is the file type a document was listed with.
type DeclaredType string

const (
	TypePDF               DeclaredType = "pdf"
	TypeWordDoc           DeclaredType = "word-doc"
	TypeWordDocLegacy     DeclaredType = "word-doc-legacy"
	TypeSpreadsheet       DeclaredType = "spreadsheet"
	TypeSpreadsheetLegacy DeclaredType = "spreadsheet-legacy"
	TypePlainText         DeclaredType = "plain-text"
	TypeGoogleDoc         DeclaredType = "google-doc"
	TypeGoogleSheet       DeclaredType = "google-sheet"
	TypeUnknown           DeclaredType = ""
)

// MIME types as reported by Google Drive.
const (
	MIMEPDF               = "application/pdf"
	MIMEWordDoc           = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEWordDocLegacy     = "application/msword"
	MIMESpreadsheet       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMESpreadsheetLegacy = "application/vnd.ms-excel"
	MIMEPlainText         = "text/plain"
	MIMEGoogleDoc         = "application/vnd.google-apps.document"
	MIMEGoogleSheet       = "application/vnd.google-apps.spreadsheet"
)

var mimeByType = map[DeclaredType]string{
	TypePDF:               MIMEPDF,
	TypeWordDoc:           MIMEWordDoc,
	TypeWordDocLegacy:     MIMEWordDocLegacy,
	TypeSpreadsheet:       MIMESpreadsheet,
	TypeSpreadsheetLegacy: MIMESpreadsheetLegacy,
	TypePlainText:         MIMEPlainText,
	TypeGoogleDoc:         MIMEGoogleDoc,
	TypeGoogleSheet:       MIMEGoogleSheet,
}

var typeByExtension = map[string]DeclaredType{
	".pdf":  TypePDF,
	".docx": TypeWordDoc,
	".doc":  TypeWordDocLegacy,
	".xlsx": TypeSpreadsheet,
	".xls":  TypeSpreadsheetLegacy,
	".txt":  TypePlainText,
	".md":   TypePlainText,
	".csv":  TypePlainText,
}

// SupportedTypes lists every declared type the extractor knows about,
// in the order they are reported by the health check.
var SupportedTypes = []DeclaredType{
	TypePDF,
	TypeWordDoc,
	TypeWordDocLegacy,
	TypeSpreadsheet,
	TypeSpreadsheetLegacy,
	TypePlainText,
	TypeGoogleDoc,
	TypeGoogleSheet,
}

// MIMEType returns the Drive MIME type for t, or "" if t is unknown.
func (t DeclaredType) MIMEType() string {
	return mimeByType[t]
}

// IsSpreadsheet reports whether t is handled as a workbook.
func (t DeclaredType) IsSpreadsheet() bool {
	return t == TypeSpreadsheet || t == TypeSpreadsheetLegacy || t == TypeGoogleSheet
}

// IsWordDoc reports whether t is a word-processor document.
func (t DeclaredType) IsWordDoc() bool {
	return t == TypeWordDoc || t == TypeWordDocLegacy
}

// DeclaredTypeFromMIME maps a Drive MIME type to a DeclaredType.
func DeclaredTypeFromMIME(mimeType string) DeclaredType {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	for t, m := range mimeByType {
		if m == mimeType {
			return t
		}
	}
	if strings.HasPrefix(mimeType, "text/") {
		return TypePlainText
	}
	return TypeUnknown
}

// DeclaredTypeFromName guesses the type from a file name extension.
func DeclaredTypeFromName(name string) DeclaredType {
	return typeByExtension[strings.ToLower(path.Ext(name))]
}

// MIMETypes returns the Drive MIME types for the given declared types.
func MIMETypes(types []DeclaredType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		if m := t.MIMEType(); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// DocumentMetadata describes a file enumerated from the remote folder.
type DocumentMetadata struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         DeclaredType `json:"type"`
	Size         int64        `json:"size"`
	ModifiedTime string       `json:"modifiedTime"`
	WebViewLink  string       `json:"webViewLink,omitempty"`
}

// CacheKey identifies one revision of a document.
func (m DocumentMetadata) CacheKey() string {
	return m.ID + "@" + m.ModifiedTime
}

// ParsedDocument is the extracted, keyword-annotated form of a document.
type ParsedDocument struct {
	Metadata    DocumentMetadata `json:"metadata"`
	Content     string           `json:"content"`
	Sections    []string         `json:"sections"`
	Keywords    []string         `json:"keywords"`
	Summary     string           `json:"summary"`
	ProcessedAt time.Time        `json:"processedAt"`
}

// DocumentRef is the minimal reference clients send for pre-warming.
type DocumentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SearchResult is one ranked hit for a query.
type SearchResult struct {
	Document         DocumentMetadata `json:"document"`
	RelevantSections []string         `json:"relevantSections"`
	MatchScore       int              `json:"matchScore"`
}
