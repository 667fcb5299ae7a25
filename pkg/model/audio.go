package model

import (
	"fmt"
	"strings"
)

type AudioTask string

const (
	AudioTaskTranscribe AudioTask = "transcribe"
	AudioTaskTranslate  AudioTask = "translate"
)

// AudioDelivery selects how audio bytes reach the model.
type AudioDelivery string

const (
	AudioDeliveryUpload AudioDelivery = "upload"
	AudioDeliveryInline AudioDelivery = "inline"
)

type AudioOptions struct {
	URL       string
	AuthToken string
	Model     string
	Task      AudioTask
	Delivery  AudioDelivery
	// Timestamped asks for segment timings. Only meaningful for transcription.
	Timestamped bool
	// TargetLanguage is the translation target; English when empty.
	TargetLanguage string
	// Prompt overrides the built-in prompt for the task.
	Prompt      string
	Temperature *float64
}

// TranscriptSegment is one timed span of speech in a single language.
type TranscriptSegment struct {
	Start    string `json:"start" jsonschema_description:"Segment start as MM:SS"`
	End      string `json:"end" jsonschema_description:"Segment end as MM:SS"`
	Language string `json:"language" jsonschema_description:"Spoken language of the segment, e.g. Hindi or Gujarati"`
	Text     string `json:"text" jsonschema_description:"Transcribed text in the native script of the language"`
}

type TimestampedTranscript struct {
	Segments []TranscriptSegment `json:"segments"`
}

// Render formats the transcript as "[start - end] (Language): text" lines.
func (t TimestampedTranscript) Render() string {
	lines := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s - %s] (%s): %s",
			strings.TrimSpace(seg.Start), strings.TrimSpace(seg.End), strings.TrimSpace(seg.Language), text))
	}
	return strings.Join(lines, "\n")
}
