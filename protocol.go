package tsuparser

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jward/tsuparser/internal/logger"
)

const (
	// ResponseTag prefixes every response line so the host can tell
	// responses apart from log output on the same stream.
	ResponseTag = "RESPONSE_TAG"
	// ExitCommand ends the request loop.
	ExitCommand = "EXIT"
)

// maxRequestSize bounds a single request line.
const maxRequestSize = 16 * 1024 * 1024

// Request is one line of input.
type Request struct {
	File string `json:"file"`
}

// FatalError ends the request loop. Its message has already been written
// to the output stream when Serve returns it.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Serve reads newline-delimited requests from r and writes responses to w
// until it reads ExitCommand or r is exhausted, both of which return nil.
// Any failure to analyse a file is fatal: its message is written to w as a
// plain line and returned as a *FatalError.
func (s *Service) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.log.Info("start parse")

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestSize)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		s.log.Info(fmt.Sprintf("< %s >", text))

		if text == ExitCommand {
			s.log.Info("end parse")
			return nil
		}
		if text == "" {
			continue
		}
		if err := s.handle(ctx, text, w); err != nil {
			fmt.Fprintln(w, err.Error())
			return &FatalError{Err: err}
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(w, err.Error())
		return &FatalError{Err: fmt.Errorf("tsuparser: read request: %w", err)}
	}
	s.log.Info("end parse")
	return nil
}

func (s *Service) handle(ctx context.Context, line string, w io.Writer) error {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return fmt.Errorf("tsuparser: malformed request: %w", err)
	}
	if req.File == "" {
		return errors.New("tsuparser: request has no file")
	}

	payload, cached, err := s.Respond(ctx, req.File)
	if err != nil {
		return err
	}
	if err := writeResponse(w, payload); err != nil {
		return fmt.Errorf("tsuparser: write response: %w", err)
	}
	s.log.Debug("response written", logger.F("file", req.File), logger.F("cached", cached))
	return nil
}

// writeResponse frames payload as "\nRESPONSE_TAG <payload>\n".
func writeResponse(w io.Writer, payload string) error {
	_, err := io.WriteString(w, "\n"+ResponseTag+" "+payload+"\n")
	return err
}
