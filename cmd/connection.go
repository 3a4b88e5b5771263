// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/voltforge/espflash/pkg/espboot"
	"github.com/voltforge/espflash/pkg/esptrace"
)

// Connection is a byte channel to a chip that the CLI can also close and,
// where the medium allows it, re-speed.
type Connection interface {
	espboot.Transport
	Close() error

	// SetBaudRate reconfigures the line speed after a CHANGE_BAUDRATE
	// command. Bridged connections own their serial side and refuse.
	SetBaudRate(rate int) error
}

// serialPollInterval bounds how long a serial read blocks, so the
// engine's deadline loops stay responsive.
const serialPollInterval = 10 * time.Millisecond

// SerialConnection wraps a local serial port.
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) SetControlLines(dtr, rts bool) error {
	if err := s.port.SetDTR(dtr); err != nil {
		return err
	}
	return s.port.SetRTS(rts)
}

func (s *SerialConnection) SetBaudRate(rate int) error {
	return s.port.SetMode(&serial.Mode{
		BaudRate: rate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// ErrConnectionClosed is returned when reading from a closed WebSocket
// connection.
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// WebSocketConnection speaks to a remote serial bridge: binary messages
// carry the raw byte stream, text messages carry control line changes as
// "DTR=<bool> RTS=<bool>".
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	// Serve buffered data first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}

		// Only binary messages carry chip bytes
		if messageType != websocket.BinaryMessage {
			continue
		}

		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) SetControlLines(dtr, rts bool) error {
	msg := fmt.Sprintf("DTR=%t RTS=%t", dtr, rts)
	return w.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (w *WebSocketConnection) SetBaudRate(rate int) error {
	return fmt.Errorf("baud rate of a bridged connection is managed by the bridge")
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// OpenSerialConnection opens a local serial port at 8N1.
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %v", portName, err)
	}
	if err := port.SetReadTimeout(serialPollInterval); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %v", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection connects to a remote serial bridge with HTTP
// Basic auth.
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword retrieves the bridge password from the environment or
// prompts for it without echo.
func GetPassword() (string, error) {
	if pw := os.Getenv("ESPFLASH_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens either a serial or WebSocket connection based on
// the persistent flags.
func OpenConnection() (Connection, string, error) {
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := OpenWebSocketConnection(wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if portName != "" {
		conn, err := OpenSerialConnection(portName, baudRate)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// session wires a connection for an engine run, with optional trace
// recording.
type session struct {
	conn      Connection
	transport espboot.Transport
	info      string
	traceFile *os.File
}

func openSession() (*session, error) {
	conn, info, err := OpenConnection()
	if err != nil {
		return nil, err
	}
	s := &session{conn: conn, transport: conn, info: info}
	if tracePath != "" {
		f, err := os.Create(tracePath)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create trace file: %v", err)
		}
		s.traceFile = f
		s.transport = esptrace.NewRecorder(conn, f)
	}
	return s, nil
}

func (s *session) Close() {
	if s.traceFile != nil {
		s.traceFile.Close()
	}
	s.conn.Close()
}
