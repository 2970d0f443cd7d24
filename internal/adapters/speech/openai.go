package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dkeye/Polyglot/internal/audio"
	"github.com/dkeye/Polyglot/internal/domain"
	"github.com/dkeye/Polyglot/internal/pipeline"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const translatePrompt = "You are a translation engine. Translate the user's text from %s into %s. " +
	"Reply with the translation only, without quotes or commentary."

var ErrMissingAPIKey = errors.New("openai: api key is required")

func newOpenAIClient(cfg Config) (*openai.Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)
	return &client, nil
}

// OpenAITranscriber sends each segment to the transcription endpoint as WAV.
type OpenAITranscriber struct {
	client *openai.Client
	model  string
}

func NewOpenAITranscriber(client *openai.Client, model string) *OpenAITranscriber {
	return &OpenAITranscriber{client: client, model: model}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, pcm []byte, f audio.Format, hint domain.Language) (pipeline.Transcript, error) {
	wav, err := audio.EncodeWAV(pcm, f)
	if err != nil {
		return pipeline.Transcript{}, err
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "segment.wav", "audio/wav"),
		Model: openai.AudioModel(t.model),
	}
	if hint != "" {
		params.Language = openai.String(hint.String())
	}
	// Only whisper models answer verbose_json, which carries the language.
	if !strings.HasPrefix(t.model, "gpt-") {
		params.ResponseFormat = openai.AudioResponseFormatVerboseJSON
	}
	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return pipeline.Transcript{}, fmt.Errorf("openai transcription: %w", err)
	}
	lang := hint
	var verbose struct {
		Language string `json:"language"`
	}
	if json.Unmarshal([]byte(resp.RawJSON()), &verbose) == nil {
		if detected, ok := detectedLanguage(verbose.Language); ok {
			lang = detected
		}
	}
	// The endpoint reports no score, so a non-empty text counts as certain.
	return pipeline.Transcript{Text: resp.Text, Language: lang, Confidence: 1}, nil
}

// detectedLanguage maps whisper's reported language, a lower-case English
// name ("spanish") or a code, onto the catalog.
func detectedLanguage(raw string) (domain.Language, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	for _, info := range domain.SupportedLanguages() {
		if strings.EqualFold(info.Name, raw) {
			return info.Code, true
		}
	}
	l, err := domain.ParseLanguage(raw)
	return l, err == nil
}

// OpenAITranslator translates with a chat completion.
type OpenAITranslator struct {
	client *openai.Client
	model  string
}

func NewOpenAITranslator(client *openai.Client, model string) *OpenAITranslator {
	return &OpenAITranslator{client: client, model: model}
}

func (t *OpenAITranslator) Translate(ctx context.Context, text string, source, target domain.Language) (string, error) {
	from := languageName(source)
	if from == "" {
		from = "the detected language"
	}
	resp, err := t.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: t.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(translatePrompt, from, languageName(target))),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat: no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// OpenAISynthesizer requests WAV speech.
type OpenAISynthesizer struct {
	client *openai.Client
	model  string
	voice  string
}

func NewOpenAISynthesizer(client *openai.Client, model, voice string) *OpenAISynthesizer {
	return &OpenAISynthesizer{client: client, model: model, voice: voice}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string, _ domain.Language) ([]byte, error) {
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.model),
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai speech: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func languageName(l domain.Language) string {
	for _, info := range domain.SupportedLanguages() {
		if info.Code == l {
			return info.Name
		}
	}
	return l.String()
}
