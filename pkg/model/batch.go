package model

import "strings"

// BatchRequest is one line of a batch request document.
type BatchRequest struct {
	Key     string         `json:"key,omitempty"`
	Request RequestPayload `json:"request"`
}

type RequestPayload struct {
	Contents []RequestContent `json:"contents"`
}

type RequestContent struct {
	Role  string        `json:"role,omitempty"`
	Parts []RequestPart `json:"parts"`
}

// RequestPart holds either inline text or a file reference. Text is a pointer so
// an empty prompt survives serialization.
type RequestPart struct {
	Text     *string   `json:"text,omitempty"`
	FileData *FileData `json:"file_data,omitempty"`
}

type FileData struct {
	FileURI  string `json:"file_uri"`
	MIMEType string `json:"mime_type,omitempty"`
}

func NewTextPart(text string) RequestPart {
	return RequestPart{Text: &text}
}

func NewFilePart(res Resource) RequestPart {
	return RequestPart{FileData: &FileData{FileURI: res.URI, MIMEType: res.MIMEType}}
}

// HasReference reports whether the record carries inline text or a file reference.
func (r BatchRequest) HasReference() bool {
	for _, content := range r.Request.Contents {
		for _, part := range content.Parts {
			if part.Text != nil || (part.FileData != nil && strings.TrimSpace(part.FileData.FileURI) != "") {
				return true
			}
		}
	}
	return false
}

// Prompt returns the concatenated inline text of the record.
func (r BatchRequest) Prompt() string {
	var texts []string
	for _, content := range r.Request.Contents {
		for _, part := range content.Parts {
			if part.Text != nil {
				texts = append(texts, *part.Text)
			}
		}
	}
	return strings.Join(texts, "\n")
}

// FileRefs returns the file references of the record in order.
func (r BatchRequest) FileRefs() []FileData {
	var refs []FileData
	for _, content := range r.Request.Contents {
		for _, part := range content.Parts {
			if part.FileData != nil {
				refs = append(refs, *part.FileData)
			}
		}
	}
	return refs
}

// Resource is a handle to a file uploaded to a remote service.
type Resource struct {
	Name        string
	URI         string
	MIMEType    string
	DisplayName string
}

// ResultRecord is one parsed line of a batch result document.
type ResultRecord struct {
	Key  string
	Line int
	text *string
}

func NewResultRecord(key string, line int, text string) ResultRecord {
	return ResultRecord{Key: key, Line: line, text: &text}
}

// Text returns the extracted text and whether any was produced.
func (r ResultRecord) Text() (string, bool) {
	if r.text == nil {
		return "", false
	}
	return *r.text, true
}
