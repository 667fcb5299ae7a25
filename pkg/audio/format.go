package audio

import (
	"errors"
	"mime"
	"path/filepath"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

// ChunkFormats are the extensions the chunked transcription path accepts.
var ChunkFormats = []string{".wav", ".mp3"}

// CheckFormat rejects anything other than .wav and .mp3.
func CheckFormat(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(path)))
	for _, allowed := range ChunkFormats {
		if ext == allowed {
			return ext, nil
		}
	}
	return "", utils.WrapIfNotNil(errors.New("unsupported audio format " + quoteExt(ext) + ": only .wav and .mp3 are supported"))
}

func quoteExt(ext string) string {
	if ext == "" {
		return `""`
	}
	return ext
}

func ResolveMIMEType(filePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filePath)))
	if ext == "" {
		return "", utils.WrapIfNotNil(errors.New("audio file extension is required to determine mime type"))
	}

	switch ext {
	case ".wav":
		return "audio/wav", nil
	case ".mp3":
		return "audio/mpeg", nil
	case ".m4a", ".mp4":
		return "audio/mp4", nil
	case ".webm":
		return "audio/webm", nil
	case ".ogg":
		return "audio/ogg", nil
	case ".flac":
		return "audio/flac", nil
	case ".aac":
		return "audio/aac", nil
	case ".aiff", ".aif":
		return "audio/aiff", nil
	}

	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "", utils.WrapIfNotNil(errors.New("unsupported audio file extension: " + ext))
	}

	// Strip parameters such as "; charset=utf-8".
	mimeType = strings.TrimSpace(strings.Split(mimeType, ";")[0])
	if !strings.HasPrefix(mimeType, "audio/") {
		return "", utils.WrapIfNotNil(errors.New("unsupported audio mime type: " + mimeType))
	}
	return mimeType, nil
}
