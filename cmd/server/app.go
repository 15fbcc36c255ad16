package main

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"panelqa-runner/internal/browser"
	"panelqa-runner/internal/config"
	"panelqa-runner/internal/csvdoc"
	"panelqa-runner/internal/engine"
	"panelqa-runner/internal/mangle"
	mcpserver "panelqa-runner/internal/mcp"
	"panelqa-runner/internal/recorder"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// app holds the wired runtime shared by the serve and run commands.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	sessions *browser.SessionManager
	store    *csvdoc.Store
	journal  *mangle.Journal
	recorder *recorder.Recorder
	engine   *engine.Engine
	server   *mcpserver.Server
}

// newApp wires every component from cfg. pages overrides the browser as the
// page source; nil attaches to Chrome lazily on the first plan.
func newApp(cfg config.Config, pages engine.PageSource, log *zap.Logger) (*app, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fs := afero.NewOsFs()

	store, err := csvdoc.NewStore(fs, cfg.Workspace.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("open work dir: %w", err)
	}
	journal, err := mangle.NewJournal(cfg.Mangle, log)
	if err != nil {
		return nil, fmt.Errorf("init journal: %w", err)
	}

	observers := []engine.Observer{journal}
	var rec *recorder.Recorder
	if cfg.Recorder.Enable {
		rec, err = recorder.NewRecorder(fs, cfg.Recorder.Dir, log)
		if err != nil {
			return nil, fmt.Errorf("init recorder: %w", err)
		}
		observers = append(observers, rec)
	}

	sessions := browser.NewSessionManager(cfg.Browser, log)
	if pages == nil {
		pages = sessions
	}

	eng := engine.New(cfg, engine.Deps{
		Pages:     pages,
		Store:     store,
		Observers: observers,
	}, log)

	server, err := mcpserver.NewServer(cfg, mcpserver.Deps{
		Sessions: sessions,
		Engine:   eng,
		Store:    store,
		Journal:  journal,
		Recorder: rec,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init MCP server: %w", err)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		sessions: sessions,
		store:    store,
		journal:  journal,
		recorder: rec,
		engine:   eng,
		server:   server,
	}, nil
}

// Close detaches from Chrome and flushes open traces. The browser itself
// keeps running.
func (a *app) Close(ctx context.Context) {
	if err := a.sessions.Shutdown(ctx); err != nil {
		a.log.Warn("detach failed", zap.Error(err))
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.log.Warn("trace flush failed", zap.Error(err))
		}
	}
}
