package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

const OutputSuffix = "_output.txt"

type resultLine struct {
	Key      *string                        `json:"key"`
	Response *genai.GenerateContentResponse `json:"response"`
	Error    *resultError                   `json:"error"`
	Status   *resultError                   `json:"status"`
}

type resultError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (e *resultError) String() string {
	if e.Message == "" {
		return fmt.Sprintf("code %d %s", e.Code, e.Status)
	}
	return e.Message
}

// FallbackKey names a record that carries no key, from its 1-based position among records.
func FallbackKey(position int) string {
	return "record_" + strconv.Itoa(position)
}

// ParseResults reads a JSON lines result document. Each non-empty line yields one
// record; lines that produce no text come back as ResultParseError diagnostics and
// never stop the remaining lines from being read.
func ParseResults(r io.Reader) ([]model.ResultRecord, []error, error) {
	var (
		records     []model.ResultRecord
		diagnostics []error
	)

	scanner := newLineScanner(r)
	line, position := 0, 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		position++

		var parsed resultLine
		if err := json.Unmarshal(raw, &parsed); err != nil {
			diagnostics = append(diagnostics, &model.ResultParseError{
				Line:   line,
				Reason: "malformed record: " + err.Error(),
			})
			continue
		}

		key := FallbackKey(position)
		if parsed.Key != nil && strings.TrimSpace(*parsed.Key) != "" {
			key = strings.TrimSpace(*parsed.Key)
		}

		if reqErr := firstNonNil(parsed.Error, parsed.Status); reqErr != nil && parsed.Response == nil {
			diagnostics = append(diagnostics, &model.ResultParseError{Key: key, Line: line, Reason: "request failed: " + reqErr.String()})
			continue
		}

		text, reason := ExtractText(parsed.Response)
		if reason != "" {
			diagnostics = append(diagnostics, &model.ResultParseError{Key: key, Line: line, Reason: reason})
			continue
		}
		records = append(records, model.NewResultRecord(key, line, text))
	}
	if err := scanner.Err(); err != nil {
		return records, diagnostics, utils.WrapIfNotNil(err)
	}
	return records, diagnostics, nil
}

func firstNonNil(errs ...*resultError) *resultError {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ExtractText returns the generated text of the first candidate. When no text is
// present the second value names the missing field.
func ExtractText(response *genai.GenerateContentResponse) (string, string) {
	if response == nil {
		return "", "missing response"
	}
	if len(response.Candidates) == 0 {
		if response.PromptFeedback != nil && response.PromptFeedback.BlockReason != "" {
			return "", "no candidates (prompt blocked: " + string(response.PromptFeedback.BlockReason) + ")"
		}
		return "", "no candidates"
	}
	candidate := response.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return "", "candidate has no content"
	}
	if len(candidate.Content.Parts) == 0 {
		return "", "candidate content has no parts"
	}

	var texts []string
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		texts = append(texts, part.Text)
	}
	text := strings.TrimSpace(strings.Join(texts, ""))
	if text == "" {
		return "", "no text in candidate parts"
	}
	return text, ""
}

// OutputPath is the file a record's text is written to.
func OutputPath(dir string, key string) string {
	return filepath.Join(dir, sanitizeKey(key)+OutputSuffix)
}

func sanitizeKey(key string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, strings.TrimSpace(key))
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return "record"
	}
	return cleaned
}

// WriteOutputs writes one file per record that carries text and returns the paths.
// Two different keys mapping to the same file is an error.
func WriteOutputs(dir string, records []model.ResultRecord) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	paths := make([]string, 0, len(records))
	written := make(map[string]string, len(records))
	for _, record := range records {
		text, ok := record.Text()
		if !ok {
			continue
		}
		path := OutputPath(dir, record.Key)
		if prev, clash := written[path]; clash && prev != record.Key {
			return paths, utils.WrapIfNotNil(fmt.Errorf("keys %q and %q both map to %s", prev, record.Key, path))
		}
		written[path] = record.Key
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return paths, utils.WrapIfNotNil(err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// KeyReport compares submitted keys with the keys found in a result document.
type KeyReport struct {
	Missing    []string
	Unexpected []string
	Duplicates []string
}

func (r KeyReport) OK() bool {
	return len(r.Missing) == 0 && len(r.Unexpected) == 0 && len(r.Duplicates) == 0
}

// VerifyKeys checks result keys against the submitted ones. Records that were
// skipped as diagnostics count as present when their key is known.
func VerifyKeys(submitted []string, records []model.ResultRecord, diagnostics []error) KeyReport {
	expected := make(map[string]bool, len(submitted))
	for _, key := range submitted {
		expected[key] = true
	}

	counts := map[string]int{}
	for _, record := range records {
		counts[record.Key]++
	}
	for _, diag := range diagnostics {
		if parseErr, ok := diag.(*model.ResultParseError); ok && parseErr.Key != "" {
			counts[parseErr.Key]++
		}
	}

	var report KeyReport
	for _, key := range submitted {
		if counts[key] == 0 {
			report.Missing = append(report.Missing, key)
		}
	}
	for key, n := range counts {
		if !expected[key] {
			report.Unexpected = append(report.Unexpected, key)
		}
		if n > 1 {
			report.Duplicates = append(report.Duplicates, key)
		}
	}
	sort.Strings(report.Unexpected)
	sort.Strings(report.Duplicates)
	return report
}
