package batch

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
)

type BuilderSuite struct {
	suite.Suite
}

func TestBuilderSuite(t *testing.T) {
	suite.Run(t, new(BuilderSuite))
}

func audioResource(name string) model.Resource {
	return model.Resource{Name: "files/" + name, URI: "https://example.test/files/" + name, MIMEType: "audio/mpeg"}
}

func (s *BuilderSuite) TestOneLinePerItemAndEachLineIsJSON() {
	items := []RequestItem{
		{Key: "a", Prompt: "Translate this audio clip into English.", Resources: []model.Resource{audioResource("one")}},
		{Prompt: "Explain how AI works in a few words"},
		{Key: "c", Prompt: "Transcribe.", Resources: []model.Resource{audioResource("two"), audioResource("three")}},
	}

	records, err := BuildDocument(items)
	s.Require().NoError(err)
	data, err := EncodeDocument(records)
	s.Require().NoError(err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	s.Require().Len(lines, len(items))
	for _, line := range lines {
		var decoded map[string]any
		s.Require().NoError(json.Unmarshal([]byte(line), &decoded))
		s.Contains(decoded, "request")
	}
}

func (s *BuilderSuite) TestRoundTripRecoversPromptAndReference() {
	res := audioResource("negative-memories")
	records, err := BuildDocument([]RequestItem{{Key: "translation_request", Prompt: "Translate.", Resources: []model.Resource{res}}})
	s.Require().NoError(err)
	data, err := EncodeDocument(records)
	s.Require().NoError(err)

	decoded, err := DecodeDocument(bytes.NewReader(data))
	s.Require().NoError(err)
	s.Require().Len(decoded, 1)
	s.Equal("translation_request", decoded[0].Key)
	s.Equal("Translate.", decoded[0].Prompt())
	s.Equal([]model.FileData{{FileURI: res.URI, MIMEType: res.MIMEType}}, decoded[0].FileRefs())
	s.True(decoded[0].HasReference())
}

func (s *BuilderSuite) TestWireFormatUsesFileDataFields() {
	records, err := BuildDocument([]RequestItem{{Key: "k", Prompt: "p", Resources: []model.Resource{audioResource("x")}}})
	s.Require().NoError(err)
	data, err := EncodeDocument(records)
	s.Require().NoError(err)

	s.JSONEq(`{"key":"k","request":{"contents":[{"role":"user","parts":[
		{"text":"p"},
		{"file_data":{"file_uri":"https://example.test/files/x","mime_type":"audio/mpeg"}}
	]}]}}`, string(data))
}

func (s *BuilderSuite) TestEmptyPromptPassedThroughVerbatim() {
	records, err := BuildDocument([]RequestItem{{Key: "k", Resources: []model.Resource{audioResource("x")}}})
	s.Require().NoError(err)
	data, err := EncodeDocument(records)
	s.Require().NoError(err)

	s.Contains(string(data), `{"text":""}`)
	decoded, err := DecodeDocument(bytes.NewReader(data))
	s.Require().NoError(err)
	s.Equal("", decoded[0].Prompt())
}

func (s *BuilderSuite) TestPositionalKeysFillBlanksInOrder() {
	records, err := BuildDocument([]RequestItem{{Prompt: "first"}, {Key: "named", Prompt: "second"}, {Prompt: "third"}})
	s.Require().NoError(err)

	s.Equal("r1", records[0].Key)
	s.Equal("named", records[1].Key)
	s.Equal("r3", records[2].Key)
	s.Equal("third", records[2].Prompt())
}

func (s *BuilderSuite) TestDuplicateKeysRejected() {
	_, err := BuildDocument([]RequestItem{{Key: "r2", Prompt: "a"}, {Prompt: "b"}})

	var subErr *model.SubmissionError
	s.Require().True(errors.As(err, &subErr))
	s.Contains(subErr.Error(), `duplicate request key "r2"`)
}

func (s *BuilderSuite) TestKeysSharingAnOutputFileRejected() {
	_, err := BuildDocument([]RequestItem{{Key: "a/b", Prompt: "x"}, {Key: "a_b", Prompt: "y"}})

	var subErr *model.SubmissionError
	s.Require().True(errors.As(err, &subErr))
	s.Contains(subErr.Error(), `"a_b" at item 2`)
	s.Contains(subErr.Error(), "a_b_output.txt")

	_, err = BuildDocument([]RequestItem{{Key: "a/b", Prompt: "x"}, {Key: "a-b", Prompt: "y"}})
	s.NoError(err)
}

func (s *BuilderSuite) TestResourceWithoutURIRejected() {
	_, err := BuildDocument([]RequestItem{{Prompt: "a", Resources: []model.Resource{{Name: "files/x"}}}})

	var subErr *model.SubmissionError
	s.True(errors.As(err, &subErr))
}

func (s *BuilderSuite) TestWriteDocumentCreatesParentDirectories() {
	path := filepath.Join(s.T().TempDir(), "output", "translated", "gemini_batch", "batch_requests.jsonl")
	records, err := BuildDocument([]RequestItem{{Prompt: "a"}, {Prompt: "b"}})
	s.Require().NoError(err)

	s.Require().NoError(WriteDocument(path, records))

	data, err := os.ReadFile(path)
	s.Require().NoError(err)
	s.Equal(2, strings.Count(string(data), "\n"))
}

func (s *BuilderSuite) TestDecodeDocumentSkipsBlankLinesAndReportsBadLine() {
	const line = `{"key":"a","request":{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}}`
	records, err := DecodeDocument(strings.NewReader("\n" + line + "\n\n"))
	s.Require().NoError(err)
	s.Len(records, 1)

	_, err = DecodeDocument(strings.NewReader(line + "\nnot json\n"))
	s.Require().Error(err)
	s.Contains(err.Error(), "line 2")
}

func (s *BuilderSuite) TestDecodeDocumentRejectsRecordWithoutReference() {
	doc := `{"key":"a","request":{"contents":[{"role":"user","parts":[{"file_data":{"file_uri":"https://files/1","mime_type":"audio/mpeg"}}]}]}}` + "\n" +
		`{"key":"b","request":{"contents":[]}}` + "\n"

	_, err := DecodeDocument(strings.NewReader(doc))
	s.Require().Error(err)
	s.Contains(err.Error(), "line 2")
	s.Contains(err.Error(), `record "b" has neither text nor a file reference`)

	_, err = DecodeDocument(strings.NewReader(`{"key":"c","request":{"contents":[{"role":"user","parts":[{"file_data":{"file_uri":"  "}}]}]}}`))
	s.Require().Error(err)
}
