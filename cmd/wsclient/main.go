// Command wsclient drives a voice session over the socket without a
// browser: it plays a 16 kHz mono WAV file as the microphone, prints the
// transcript as it changes and saves the tutor's audio to a WAV file.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/satriahrh/englichat/internal/audio"
	ws "github.com/satriahrh/englichat/internal/websocket"
)

const frameSamples = 4096

type session struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	received []byte
	rate     int
	status   string
	printed  map[string]bool
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	in := flag.String("in", "", "16 kHz mono WAV file to stream as the microphone")
	out := flag.String("out", "reply.wav", "where to write the received audio")
	linger := flag.Duration("linger", 8*time.Second, "how long to wait for replies after the input ends")
	flag.Parse()

	if *in == "" {
		log.Fatal("-in is required")
	}
	samples, err := loadInput(*in)
	if err != nil {
		log.Fatalf("Failed to load %s: %v", *in, err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws/voice"}
	log.Printf("connecting to %s", u.String())

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			log.Fatalf("WebSocket connection failed with status %d: %v", resp.StatusCode, err)
		}
		log.Fatalf("WebSocket connection failed: %v", err)
	}
	defer conn.Close()

	s := &session{conn: conn, rate: audio.OutputSampleRate, printed: make(map[string]bool)}
	granted := make(chan struct{})
	idle := make(chan struct{}, 1)
	done := make(chan struct{})
	go s.readLoop(granted, idle, done)

	if err := s.writeJSON(map[string]string{"type": string(ws.MessageTypeVoiceStart)}); err != nil {
		log.Fatalf("Failed to start voice session: %v", err)
	}

	select {
	case <-granted:
	case <-done:
		return
	case <-interrupt:
		return
	}

	log.Printf("streaming %.1fs of audio", float64(len(samples))/audio.InputSampleRate)
	ticker := time.NewTicker(time.Duration(frameSamples) * time.Second / audio.InputSampleRate)
	defer ticker.Stop()

stream:
	for start := 0; start < len(samples); start += frameSamples {
		end := min(start+frameSamples, len(samples))
		if err := s.writeBinary(audio.Float32ToBytes(samples[start:end])); err != nil {
			log.Printf("write frame: %v", err)
			break
		}
		select {
		case <-ticker.C:
		case <-interrupt:
			break stream
		case <-done:
			return
		}
	}

	select {
	case <-time.After(*linger):
	case <-interrupt:
	case <-done:
	}

	if err := s.writeJSON(map[string]string{"type": string(ws.MessageTypeVoiceStop)}); err != nil {
		log.Printf("stop: %v", err)
	}
	select {
	case <-idle:
	case <-time.After(2 * time.Second):
	}

	if err := s.save(*out); err != nil {
		log.Fatalf("Failed to write %s: %v", *out, err)
	}

	s.writeMu.Lock()
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

func loadInput(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pcm, rate, channels, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	if rate != audio.InputSampleRate || channels != 1 {
		return nil, fmt.Errorf("want %d Hz mono, got %d Hz with %d channels", audio.InputSampleRate, rate, channels)
	}
	buffer, err := audio.DecodePCM16(pcm, rate, channels)
	if err != nil {
		return nil, err
	}
	return buffer.Channels[0], nil
}

func (s *session) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *session) writeBinary(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (s *session) readLoop(granted, idle, done chan struct{}) {
	defer close(done)
	grantOnce := sync.Once{}

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("read: %v", err)
			}
			return
		}

		var base ws.BaseMessage
		if err := json.Unmarshal(message, &base); err != nil {
			log.Printf("unparseable message: %s", message)
			continue
		}

		switch base.Type {
		case ws.MessageTypeMicRequest:
			err := s.writeJSON(map[string]interface{}{
				"type":        ws.MessageTypeMicGranted,
				"sample_rate": audio.InputSampleRate,
			})
			if err != nil {
				log.Printf("grant microphone: %v", err)
				return
			}
			grantOnce.Do(func() { close(granted) })

		case ws.MessageTypeVoiceState:
			var state ws.VoiceStateMessage
			if err := json.Unmarshal(message, &state); err != nil {
				continue
			}
			s.printState(state)
			if state.Status == "idle" {
				select {
				case idle <- struct{}{}:
				default:
				}
			}

		case ws.MessageTypeAudioClip:
			var clip ws.AudioClipMessage
			if err := json.Unmarshal(message, &clip); err != nil {
				continue
			}
			pcm, err := base64.StdEncoding.DecodeString(clip.AudioData)
			if err != nil {
				log.Printf("clip %d: %v", clip.ClipID, err)
				continue
			}
			s.mu.Lock()
			s.received = append(s.received, pcm...)
			s.rate = clip.SampleRate
			s.mu.Unlock()

		case ws.MessageTypeError:
			var msg ws.ErrorMessage
			if err := json.Unmarshal(message, &msg); err == nil {
				log.Printf("server error %s: %s %s", msg.Code, msg.Message, msg.Details)
			}
		}
	}
}

// printState prints the status on change and every entry once it is final
func (s *session) printState(state ws.VoiceStateMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if string(state.Status) != s.status {
		s.status = string(state.Status)
		log.Printf("[%s]", s.status)
	}
	for _, entry := range state.Transcripts {
		if !entry.IsFinal || s.printed[entry.ID] {
			continue
		}
		s.printed[entry.ID] = true
		fmt.Printf("%-10s %s\n", string(entry.Sender)+":", entry.Text)
	}
}

func (s *session) save(path string) error {
	s.mu.Lock()
	pcm, rate := s.received, s.rate
	s.mu.Unlock()

	if len(pcm) == 0 {
		log.Println("no audio received")
		return nil
	}
	data, err := audio.EncodeWAV(pcm, rate, 1)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	log.Printf("wrote %.1fs of tutor audio to %s", float64(len(pcm)/2)/float64(rate), path)
	return nil
}
