package platform

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/revisionhiep-create/Project-Astral/internal/logging"
)

// StdioChannel is the single channel ID a stdio session runs in.
const StdioChannel = "stdio"

// Stdio is a terminal chat surface: one line in, one reply out. It exists
// so the whole pipeline can run without any gateway connection.
type Stdio struct {
	botName  string
	userName string

	in  io.Reader
	out io.Writer

	mu sync.Mutex
}

// StdioOption configures a Stdio surface.
type StdioOption func(*Stdio)

// WithStreams replaces stdin/stdout, for tests.
func WithStreams(in io.Reader, out io.Writer) StdioOption {
	return func(s *Stdio) {
		s.in = in
		s.out = out
	}
}

// WithUserName sets the display name attached to typed messages.
func WithUserName(name string) StdioOption {
	return func(s *Stdio) { s.userName = name }
}

// NewStdio creates a stdio surface bound to the process terminal.
func NewStdio(botName string, opts ...StdioOption) *Stdio {
	s := &Stdio{
		botName:  botName,
		userName: "User",
		in:       os.Stdin,
		out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send prints a reply to the terminal.
func (s *Stdio) Send(ctx context.Context, channelID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := fmt.Fprintf(s.out, "%s: %s\n", s.botName, text)
	return err
}

// Run reads lines until EOF, "/quit", or context cancellation, handing each
// one to handle as a Message. handle is called on the reader goroutine, so
// it should hand off to a dispatcher rather than block on a full turn.
func (s *Stdio) Run(ctx context.Context, handle func(Message)) error {
	// Derived context releases the reader goroutine when Run returns.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lines := make(chan string)
	done := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		done <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-done:
					return err
				default:
					return nil
				}
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if text == "/quit" || text == "/exit" {
				logging.Boot("Stdio session closed by user")
				return nil
			}
			handle(Message{
				ID:        uuid.NewString(),
				ChannelID: StdioChannel,
				UserID:    "stdio-user",
				UserName:  s.userName,
				Content:   text,
			})
		}
	}
}
