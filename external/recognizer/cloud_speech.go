package recognizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/foxseedlab/koewake/internal/recognizer"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	audioSampleRateHertz = 16000
	diarizationSpeakers  = 2
)

type CloudSpeechConfig struct {
	CredentialsJSON string
	Language        string
	Model           string
}

type CloudSpeechRecognizer struct {
	credentialsJSON string
	language        string
	model           string
	logger          zerolog.Logger
}

func NewCloudSpeechRecognizer(cfg CloudSpeechConfig, logger zerolog.Logger) recognizer.Recognizer {
	return &CloudSpeechRecognizer{
		credentialsJSON: cfg.CredentialsJSON,
		language:        strings.TrimSpace(cfg.Language),
		model:           strings.TrimSpace(cfg.Model),
		logger:          logger,
	}
}

// streamingConfig asks for two-speaker diarization with word offsets on
// 16 kHz LINEAR16 audio.
func (r *CloudSpeechRecognizer) streamingConfig() *speechpb.StreamingRecognizeRequest {
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            audioSampleRateHertz,
					LanguageCode:               r.language,
					EnableAutomaticPunctuation: true,
					EnableWordTimeOffsets:      true,
					UseEnhanced:                true,
					Model:                      r.model,
					DiarizationConfig: &speechpb.SpeakerDiarizationConfig{
						EnableSpeakerDiarization: true,
						MinSpeakerCount:          diarizationSpeakers,
						MaxSpeakerCount:          diarizationSpeakers,
					},
				},
				InterimResults: true,
			},
		},
	}
}

func (r *CloudSpeechRecognizer) StartStreaming(ctx context.Context, streamID string, receiver recognizer.ResultReceiver) (recognizer.StreamWriter, error) {
	logger := r.logger.With().Str("streamId", streamID).Logger()
	logger.Info().Str("language", r.language).Str("model", r.model).Msg("starting cloud speech streaming")

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(r.credentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}
	client, err := speech.NewClient(ctx, option.WithAuthCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	open := func() (speechpb.Speech_StreamingRecognizeClient, error) {
		stream, err := client.StreamingRecognize(ctx)
		if err != nil {
			return nil, err
		}
		if err := stream.Send(r.streamingConfig()); err != nil {
			_ = stream.CloseSend()
			return nil, err
		}
		return stream, nil
	}
	stream, err := open()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("open recognize stream: %w", err)
	}
	logger.Info().Msg("cloud speech stream initialized")

	w := &streamWriter{
		stream:      stream,
		receiver:    receiver,
		newStreamFn: open,
		closeFn:     client.Close,
		logger:      logger,
	}
	w.startReceiver(stream)
	return w, nil
}

type streamWriter struct {
	mu          sync.Mutex
	closed      bool
	stream      speechpb.Speech_StreamingRecognizeClient
	receiver    recognizer.ResultReceiver
	newStreamFn func() (speechpb.Speech_StreamingRecognizeClient, error)
	closeFn     func() error
	logger      zerolog.Logger
}

func (w *streamWriter) Write(pcm []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return io.ErrClosedPipe
	}
	req := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: pcm,
		},
	}
	if err := w.stream.Send(req); err != nil {
		if !isReconnectableStreamError(err) {
			return err
		}
		w.logger.Warn().Err(err).Msg("recognizer send failed with reconnectable error; reconnecting")
		if err := w.reconnectLocked(); err != nil {
			return fmt.Errorf("reconnect stream: %w", err)
		}
		return w.stream.Send(req)
	}
	return nil
}

func (w *streamWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.stream.CloseSend(); err != nil {
		_ = w.closeFn()
		return err
	}
	return w.closeFn()
}

func (w *streamWriter) reconnectLocked() error {
	_ = w.stream.CloseSend()
	next, err := w.newStreamFn()
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to reconnect recognizer stream")
		return err
	}
	w.stream = next
	w.startReceiver(next)
	w.logger.Info().Msg("recognizer stream reconnected")
	return nil
}

func (w *streamWriter) startReceiver(stream speechpb.Speech_StreamingRecognizeClient) {
	go func() {
		for {
			resp, err := stream.Recv()
			if err != nil {
				switch {
				case errors.Is(err, io.EOF), status.Code(err) == codes.Canceled:
					w.logger.Debug().Err(err).Msg("recognizer receive loop stopped")
				case isReconnectableStreamError(err):
					w.logger.Warn().Err(err).Msg("recognizer stream hit its limit; next write reconnects")
				default:
					w.receiver.OnError(err)
				}
				return
			}
			for _, result := range resp.GetResults() {
				if r, ok := toResult(result); ok {
					w.receiver.OnResult(r)
				}
			}
		}
	}()
}

func toResult(result *speechpb.StreamingRecognitionResult) (recognizer.Result, bool) {
	alts := result.GetAlternatives()
	if len(alts) == 0 {
		return recognizer.Result{}, false
	}
	top := alts[0]
	words := make([]recognizer.Word, 0, len(top.GetWords()))
	for _, w := range top.GetWords() {
		words = append(words, recognizer.Word{
			Text:       w.GetWord(),
			SpeakerTag: int(w.GetSpeakerTag()),
		})
	}
	return recognizer.Result{
		Transcript: top.GetTranscript(),
		Words:      words,
		IsFinal:    result.GetIsFinal(),
	}, true
}

// isReconnectableStreamError reports the stream length and idle limits the
// service enforces on a single streaming call.
func isReconnectableStreamError(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	msg := strings.ToLower(st.Message())
	switch st.Code() {
	case codes.OutOfRange:
		return strings.Contains(msg, "maximum allowed stream duration") ||
			strings.Contains(msg, "long duration elapsed without audio")
	case codes.Aborted:
		return strings.Contains(msg, "max duration") ||
			strings.Contains(msg, "no more client requests")
	}
	return false
}
