package stt

import (
	"context"
	"fmt"
	"io"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"github.com/vango-go/midas/pkg/core"
)

// Recognizer is the subset of the Cloud Speech client used here.
type Recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
}

// GoogleProvider transcribes with Google Cloud Speech-to-Text synchronous
// recognition. Recordings must be under one minute.
type GoogleProvider struct {
	client Recognizer
	closer io.Closer
}

// NewGoogle dials Cloud Speech using Application Default Credentials unless
// opts say otherwise.
func NewGoogle(ctx context.Context, opts ...option.ClientOption) (*GoogleProvider, error) {
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &GoogleProvider{client: client, closer: client}, nil
}

// NewGoogleWithRecognizer wraps an existing recognizer.
func NewGoogleWithRecognizer(r Recognizer) *GoogleProvider {
	return &GoogleProvider{client: r}
}

// Name returns the provider identifier.
func (g *GoogleProvider) Name() string {
	return "google"
}

// Close releases the underlying connection.
func (g *GoogleProvider) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer.Close()
}

// Transcribe runs one Recognize call and joins the top alternative of every
// result.
func (g *GoogleProvider) Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	lang := opts.Language
	if lang == "" {
		lang = "en-US"
	}
	cfg := &speechpb.RecognitionConfig{
		Encoding:              googleEncoding(opts.Format),
		SampleRateHertz:       int32(opts.SampleRate),
		LanguageCode:          lang,
		EnableWordTimeOffsets: opts.Timestamps,
		Model:                 opts.Model,
	}
	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: data}},
	})
	if err != nil {
		return nil, core.NewProviderError("google", err)
	}

	t := &Transcript{Language: lang}
	var parts []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		best := alts[0]
		parts = append(parts, strings.TrimSpace(best.GetTranscript()))
		for _, w := range best.GetWords() {
			t.Words = append(t.Words, Word{
				Word:  w.GetWord(),
				Start: w.GetStartTime().AsDuration().Seconds(),
				End:   w.GetEndTime().AsDuration().Seconds(),
			})
		}
	}
	t.Text = strings.Join(parts, " ")
	if d := resp.GetTotalBilledTime(); d != nil {
		t.Duration = d.AsDuration().Seconds()
	}
	return t, nil
}

func googleEncoding(format string) speechpb.RecognitionConfig_AudioEncoding {
	switch format {
	case "pcm_s16le", "linear16", "wav":
		return speechpb.RecognitionConfig_LINEAR16
	case "flac":
		return speechpb.RecognitionConfig_FLAC
	case "ogg", "oga", "opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "webm":
		return speechpb.RecognitionConfig_WEBM_OPUS
	case "pcm_mulaw":
		return speechpb.RecognitionConfig_MULAW
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
