// Package livereload pushes reload notices to browsers while assets are
// edited on disk in development.
package livereload

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	ws "nhooyr.io/websocket"
)

const Path = "/__livereload"

// Script is injected before </body> of the entry document.
const Script = `<script>(function(){var p=location.protocol==="https:"?"wss://":"ws://";` +
	`function c(){var s=new WebSocket(p+location.host+"` + Path + `");` +
	`s.onmessage=function(e){try{if(JSON.parse(e.data).type==="reload")location.reload()}catch(_){}};` +
	`s.onclose=function(){setTimeout(c,1000)}}c()})();</script>`

type Message struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
	TsMs int64  `json:"ts_ms"`
}

type Server struct {
	Reg      *Registry
	Debounce time.Duration
	log      *slog.Logger
}

func NewServer(reg *Registry) *Server {
	return &Server{
		Reg:      reg,
		Debounce: 100 * time.Millisecond,
		log:      slog.Default().With("component", "livereload"),
	}
}

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	c, err := ws.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("ws accept", "error", err)
		return
	}
	id := uuid.NewString()
	s.Reg.Add(id, c)
	s.log.Debug("browser connected", "conn_id", id, "conns", s.Reg.Len())

	// Browsers never send; reading only detects the close.
	ctx := c.CloseRead(r.Context())
	<-ctx.Done()

	s.Reg.Remove(id)
	_ = c.Close(ws.StatusNormalClosure, "done")
	s.log.Debug("browser disconnected", "conn_id", id)
}

// Watch broadcasts a reload for every burst of changes under dir until ctx ends.
func (s *Server) Watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() != "." && strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("watching assets", "dir", dir)

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending string
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.Add(ev.Name)
				}
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending = ev.Name
			if timer == nil {
				timer = time.NewTimer(s.Debounce)
			} else {
				timer.Reset(s.Debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			rel, err := filepath.Rel(dir, pending)
			if err != nil {
				rel = pending
			}
			n := s.Reg.Broadcast(ctx, Message{Type: "reload", Path: filepath.ToSlash(rel), TsMs: time.Now().UnixMilli()})
			s.log.Debug("reload sent", "path", rel, "conns", n)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				s.Reg.Broadcast(ctx, Message{Type: "reload", TsMs: time.Now().UnixMilli()})
				continue
			}
			s.log.Warn("watch error", "error", err)
		}
	}
}
