package batch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

// RequestItem is one prompt plus the uploaded resources it refers to.
type RequestItem struct {
	// Key correlates the request with its result. Positional keys (r1, r2, ...) fill blanks.
	Key       string
	Prompt    string
	Resources []model.Resource
}

// PositionalKey is the key given to the item at index i when it has none.
func PositionalKey(i int) string {
	return "r" + strconv.Itoa(i+1)
}

// BuildDocument turns items into batch request records, preserving order. Prompts
// are not validated; an empty prompt is sent as an empty text part.
func BuildDocument(items []RequestItem) ([]model.BatchRequest, error) {
	records := make([]model.BatchRequest, 0, len(items))
	seen := make(map[string]int, len(items))
	files := make(map[string]int, len(items))

	for i, item := range items {
		key := strings.TrimSpace(item.Key)
		if key == "" {
			key = PositionalKey(i)
		}
		if prev, dup := seen[key]; dup {
			return nil, utils.WrapIfNotNil(&model.SubmissionError{
				Err: fmt.Errorf("duplicate request key %q at items %d and %d", key, prev+1, i+1),
			})
		}
		seen[key] = i
		// Distinct keys must not share an output file.
		file := sanitizeKey(key)
		if prev, clash := files[file]; clash {
			return nil, utils.WrapIfNotNil(&model.SubmissionError{
				Err: fmt.Errorf("request key %q at item %d writes the same output file as item %d (%s%s)",
					key, i+1, prev+1, file, OutputSuffix),
			})
		}
		files[file] = i

		parts := make([]model.RequestPart, 0, 1+len(item.Resources))
		parts = append(parts, model.NewTextPart(item.Prompt))
		for _, res := range item.Resources {
			if strings.TrimSpace(res.URI) == "" {
				return nil, utils.WrapIfNotNil(&model.SubmissionError{
					Err: fmt.Errorf("request %q references resource %q without a URI", key, res.Name),
				})
			}
			parts = append(parts, model.NewFilePart(res))
		}

		records = append(records, model.BatchRequest{
			Key: key,
			Request: model.RequestPayload{
				Contents: []model.RequestContent{{Role: "user", Parts: parts}},
			},
		})
	}
	return records, nil
}

// EncodeDocument serializes records as JSON lines.
func EncodeDocument(records []model.BatchRequest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return nil, utils.WrapIfNotNil(err)
		}
	}
	return buf.Bytes(), nil
}

// WriteDocument writes records to path, creating parent directories.
func WriteDocument(path string, records []model.BatchRequest) error {
	data, err := EncodeDocument(records)
	if err != nil {
		return utils.WrapIfNotNil(err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return utils.WrapIfNotNil(err)
		}
	}
	return utils.WrapIfNotNil(os.WriteFile(path, data, 0o644))
}

// DecodeDocument reads a JSON lines batch document. Blank lines are ignored. Every
// record must carry inline text or a file reference.
func DecodeDocument(r io.Reader) ([]model.BatchRequest, error) {
	var records []model.BatchRequest
	scanner := newLineScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var record model.BatchRequest
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, utils.WrapIfNotNil(fmt.Errorf("line %d: %w", line, err))
		}
		if !record.HasReference() {
			return nil, utils.WrapIfNotNil(fmt.Errorf("line %d: record %q has neither text nor a file reference", line, record.Key))
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return records, nil
}

// Result lines can carry long transcripts, well past bufio's default token size.
const maxLineBytes = 64 << 20

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return scanner
}
