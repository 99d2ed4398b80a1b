package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"scribe/log"
)

// Handler answers one command. It is called from the connection's goroutine.
type Handler interface {
	Handle(ctx context.Context, cmd Command) Response
}

type HandlerFunc func(ctx context.Context, cmd Command) Response

func (f HandlerFunc) Handle(ctx context.Context, cmd Command) Response { return f(ctx, cmd) }

type Server struct {
	path    string
	handler Handler
	ln      net.Listener
}

// Listen binds the socket at path. A stale socket left by a crashed panel is
// replaced; a live one makes Listen fail.
func Listen(path string, h Handler) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if c, err := net.Dial("unix", path); err == nil {
			c.Close()
			return nil, fmt.Errorf("another panel is listening on %s", path)
		}
		os.Remove(path)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return &Server{path: path, handler: h, ln: ln}, nil
}

func (s *Server) Path() string { return s.path }

// Serve accepts connections until ctx is cancelled, then closes the
// listener, waits for open connections and removes the socket file.
func (s *Server) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		os.Remove(s.path)
	}()

	stop := context.AfterFunc(ctx, func() { s.ln.Close() })
	defer stop()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	closeOnCancel := context.AfterFunc(ctx, func() { conn.Close() })
	defer closeOnCancel()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLine)
	enc := json.NewEncoder(conn)
	for scanner.Scan() {
		var cmd Command
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			resp = Response{Error: fmt.Sprintf("bad command: %v", err)}
		} else {
			log.Infof("control command: %s", cmd.Cmd)
			resp = s.handler.Handle(ctx, cmd)
		}
		if err := enc.Encode(resp); err != nil {
			if ctx.Err() == nil {
				log.Warnf("control write: %v", err)
			}
			return
		}
	}
}
