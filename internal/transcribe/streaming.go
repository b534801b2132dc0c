package transcribe

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/b08x/omega-13/internal/wav"
)

const (
	// asrEndpoint is the streaming ASR path appended to the server URL.
	asrEndpoint = "/api/asr-streaming"
	// streamChunkFrames is the number of samples per audio frame sent to
	// the server (80ms at 24kHz, the protocol's native pacing).
	streamChunkFrames = 1920
)

// streamingBackend transcribes by replaying the recording through a
// moshi-style streaming ASR websocket and concatenating the returned
// words. The recording must already match the server's expected rate;
// no resampling is performed.
type streamingBackend struct {
	serverURL string
	apiKey    string
}

func newStreamingBackend(serverURL, apiKey string) *streamingBackend {
	return &streamingBackend{serverURL: serverURL, apiKey: apiKey}
}

func (b *streamingBackend) wsURL() string {
	url := strings.TrimSuffix(b.serverURL, "/")
	url = strings.Replace(url, "http://", "ws://", 1)
	url = strings.Replace(url, "https://", "wss://", 1)
	if strings.HasSuffix(url, asrEndpoint) {
		return url
	}
	return url + asrEndpoint
}

func (b *streamingBackend) header() http.Header {
	header := make(http.Header)
	if b.apiKey != "" {
		header.Set("kyutai-api-key", b.apiKey)
	}
	return header
}

func (b *streamingBackend) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	file, err := wav.Decode(audioPath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read recording: %w", err)
	}
	pcm := downmix(file.Samples, file.Channels)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.wsURL(), b.header())
	if err != nil {
		return Result{}, fmt.Errorf("failed to connect to streaming backend: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	// Writer side: stream the PCM in protocol-sized frames, then a marker
	// the server echoes once every preceding word is out.
	sendErr := make(chan error, 1)
	go func() {
		for off := 0; off < len(pcm); off += streamChunkFrames {
			end := off + streamChunkFrames
			if end > len(pcm) {
				end = len(pcm)
			}
			data, err := encodeAudioFrame(pcm[off:end])
			if err != nil {
				sendErr <- err
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				sendErr <- err
				return
			}
			select {
			case <-ctx.Done():
				sendErr <- ctx.Err()
				return
			default:
			}
		}
		data, err := encodeMarkerFrame(1)
		if err != nil {
			sendErr <- err
			return
		}
		sendErr <- conn.WriteMessage(websocket.BinaryMessage, data)
	}()

	var words []string
	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if werr := <-sendErr; werr != nil {
				return Result{}, fmt.Errorf("streaming send failed: %w", werr)
			}
			return Result{}, fmt.Errorf("streaming receive failed: %w", err)
		}
		msg, err := decodeStreamMessage(data)
		if err != nil {
			return Result{}, fmt.Errorf("failed to decode server frame: %w", err)
		}

		switch m := msg.(type) {
		case *wordFrame:
			if m.Text != "" {
				words = append(words, m.Text)
			}
		case *markerFrame:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return Result{Text: strings.Join(words, " ")}, nil
		case *errorFrame:
			return Result{}, fmt.Errorf("streaming backend error: %s", m.Message)
		}
	}
}

func (b *streamingBackend) Health(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.wsURL(), b.header())
	if err != nil {
		return fmt.Errorf("streaming backend unreachable: %w", err)
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return conn.Close()
}

// downmix averages interleaved channels into mono for the streaming
// protocol, which carries a single channel.
func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	mono := make([]float32, len(samples)/channels)
	for i := range mono {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
