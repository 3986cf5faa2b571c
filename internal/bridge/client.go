// ABOUTME: WebSocket client for the guest audio bridge
// ABOUTME: Routes control messages and audio frames into the playback engine
package bridge

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/spicy-kvm/spicy-kvm-go/pkg/audio"
)

// Handler receives decoded bridge events. The reader goroutine serializes
// every call, which is the threading contract the playback engine's
// guest-facing entry points rely on.
type Handler interface {
	Start(channels, sampleRate int, format audio.SampleFormat, timestamp uint32)
	Stop()
	Volume(channels int, volume []uint16)
	Mute(mute bool)
	Data(data []byte)
	RecordStart(channels, sampleRate int, format audio.SampleFormat)
	RecordStop()
}

// Config holds client configuration.
type Config struct {
	ServerAddr string
	Name       string
}

// Client connects to the guest's audio bridge and feeds a Handler.
type Client struct {
	config  Config
	handler Handler

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	done      chan struct{}

	// Stream codec negotiated by the latest stream/start.
	codec   string
	decoder *opusStream
}

// NewClient creates a bridge client delivering events to handler.
func NewClient(config Config, handler Handler) *Client {
	return &Client{
		config:  config,
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Connect dials the bridge, performs the handshake, and starts the reader.
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: "/audio"}
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()
	return nil
}

func (c *Client) handshake() error {
	hello := ClientHello{
		ClientID: uuid.New().String(),
		Name:     c.config.Name,
		Version:  1,
	}
	if err := c.sendJSON("client/hello", hello); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}
	if msg.Type != "server/hello" {
		return fmt.Errorf("expected server/hello, got %s", msg.Type)
	}

	var serverHello ServerHello
	if err := json.Unmarshal(msg.Payload, &serverHello); err != nil {
		return fmt.Errorf("failed to parse server/hello payload: %w", err)
	}
	log.Printf("Connected to bridge %q (protocol v%d)", serverHello.Name, serverHello.Version)
	return nil
}

func (c *Client) sendJSON(msgType string, payload interface{}) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return fmt.Errorf("not connected")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.conn.WriteJSON(Message{Type: msgType, Payload: raw})
}

// SendRecordFrame delivers captured S16 frames to the guest.
func (c *Client) SendRecordFrame(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return fmt.Errorf("not connected")
	}

	frame := make([]byte, binaryHeaderSize+len(data))
	frame[0] = recordFrameType
	binary.BigEndian.PutUint64(frame[1:], uint64(time.Now().UnixMicro()))
	copy(frame[binaryHeaderSize:], data)
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// readMessages reads and routes incoming messages until the connection
// drops. All Handler calls happen on this goroutine.
func (c *Client) readMessages() {
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Printf("Read error: %v", err)
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.handleBinaryMessage(data)
		case websocket.TextMessage:
			c.handleJSONMessage(data)
		default:
			log.Printf("Unknown WebSocket message type: %d", messageType)
		}
	}
}

func (c *Client) handleBinaryMessage(data []byte) {
	if len(data) < binaryHeaderSize {
		log.Printf("Invalid binary message: too short")
		return
	}
	if data[0] != audioFrameType {
		log.Printf("Unknown binary message type: %d", data[0])
		return
	}

	payload := data[binaryHeaderSize:]
	if c.codec == "opus" {
		pcm, err := c.decoder.decode(payload)
		if err != nil {
			log.Printf("Opus decode failed: %v", err)
			return
		}
		payload = pcm
	}
	c.handler.Data(payload)
}

func (c *Client) handleJSONMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Failed to parse JSON message: %v", err)
		return
	}

	switch msg.Type {
	case "stream/start":
		var start StreamStart
		if err := json.Unmarshal(msg.Payload, &start); err != nil {
			log.Printf("Bad stream/start payload: %v", err)
			return
		}
		c.codec = start.Codec
		c.decoder = nil
		if start.Codec == "opus" {
			dec, err := newOpusStream(start.SampleRate, start.Channels)
			if err != nil {
				log.Printf("Failed to create opus decoder: %v", err)
				return
			}
			c.decoder = dec
		} else if start.Codec != "" && start.Codec != "pcm" {
			log.Printf("Unsupported codec %q, ignoring stream", start.Codec)
			return
		}
		c.handler.Start(start.Channels, start.SampleRate, audio.FormatS16, start.Timestamp)

	case "stream/stop":
		c.handler.Stop()

	case "playback/volume":
		var vol PlaybackVolume
		if err := json.Unmarshal(msg.Payload, &vol); err != nil {
			log.Printf("Bad playback/volume payload: %v", err)
			return
		}
		c.handler.Volume(len(vol.Volume), vol.Volume)

	case "playback/mute":
		var mute PlaybackMute
		if err := json.Unmarshal(msg.Payload, &mute); err != nil {
			log.Printf("Bad playback/mute payload: %v", err)
			return
		}
		c.handler.Mute(mute.Mute)

	case "record/start":
		var start RecordStart
		if err := json.Unmarshal(msg.Payload, &start); err != nil {
			log.Printf("Bad record/start payload: %v", err)
			return
		}
		c.handler.RecordStart(start.Channels, start.SampleRate, audio.FormatS16)

	case "record/stop":
		c.handler.RecordStop()

	default:
		log.Printf("Unhandled message type: %s", msg.Type)
	}
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return
	}
	c.connected = false
	close(c.done)
	c.conn.Close()
}
