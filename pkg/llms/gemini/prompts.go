package gemini

import (
	"strings"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
)

const (
	defaultTargetLanguage = "English"

	transcriptionPreamble = "You are a professional multilingual transcription assistant.\n" +
		"Transcribe the audio exactly as spoken, preserving both spoken language and script.\n" +
		"Automatically detect when the speaker switches between Hindi and Gujarati.\n" +
		"For Hindi speech, use Devanagari script (e.g., नमस्ते, क्या हाल है?).\n" +
		"For Gujarati speech, use Gujarati script (e.g., કેમ છો?, તમારું સ્વાગત છે.).\n" +
		"Do NOT transliterate or translate; use the native script of each detected language.\n\n"

	plainTranscriptionInstructions = "Return the output as plain text transcription without timestamps.\n" +
		"Maintain proper punctuation and spacing for readability."

	timestampedTranscriptionInstructions = "Split the transcript into segments wherever the speaker or the language changes.\n" +
		"For every segment give the start and end time as MM:SS, the language name and the text.\n\n" +
		"Example segment: start 00:00, end 00:12, language Hindi, text नमस्ते, मेरा नाम अभिजीत है।"

	translationTemplate = "You are a professional speech translation assistant.\n" +
		"Listen to the given audio clip carefully and translate everything spoken " +
		"into clear, natural {{language}}.\n\n" +
		"The speaker may use Hindi, Gujarati, or a mix of both.\n" +
		"Do not provide the transcription in the original language; only output " +
		"the {{language}} translation.\n" +
		"Maintain the tone and meaning accurately, and ensure proper grammar and " +
		"punctuation in {{language}}.\n"

	// BatchTranslationPrompt is the short prompt used for each request of a batch translation.
	BatchTranslationPrompt = "Translate this audio clip into English. " +
		"The speaker may use Hindi, Gujarati, or both. " +
		"Do not transcribe; only provide the English translation. " +
		"Preserve tone and meaning accurately with correct grammar."

	// BatchTranscriptionPrompt is the batch counterpart of the plain transcription prompt.
	BatchTranscriptionPrompt = transcriptionPreamble + plainTranscriptionInstructions
)

// BuildAudioPrompt returns the prompt for the task, honouring an explicit override.
func BuildAudioPrompt(opts model.AudioOptions) string {
	if prompt := strings.TrimSpace(opts.Prompt); prompt != "" {
		return prompt
	}
	if opts.Task == model.AudioTaskTranslate {
		return TranslationPrompt(opts.TargetLanguage)
	}
	if opts.Timestamped {
		return transcriptionPreamble + timestampedTranscriptionInstructions
	}
	return transcriptionPreamble + plainTranscriptionInstructions
}

func TranslationPrompt(targetLanguage string) string {
	language := strings.TrimSpace(targetLanguage)
	if language == "" {
		language = defaultTargetLanguage
	}
	return strings.ReplaceAll(translationTemplate, "{{language}}", language)
}
