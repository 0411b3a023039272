package httpapi

import (
	"context"
	"log"
	"net/http"

	"github.com/kasuganosora/syncbase/internal/access"
	"github.com/kasuganosora/syncbase/internal/binary"
	"github.com/kasuganosora/syncbase/internal/config"
	"github.com/kasuganosora/syncbase/internal/sync"
)

// basePath is the mount point of the wire table, "{base}/...".
const basePath = "/api/v1"

// Server is the HTTP REST API server, wiring the access client, sync
// server, binary engine and session store into the mux the
// NewServer/Start/Shutdown shape expects.
type Server struct {
	api         *API
	configDir   string
	cfg         config.ServerConfig
	clientStore *ClientStore
	httpServer  *http.Server
}

// NewServer creates a new HTTP API server.
func NewServer(db *access.Client, syncSrv *sync.Server, bin *binary.Engine, sessions SessionStore, cfg config.ServerConfig) *Server {
	return &Server{
		api: &API{
			DB:       db,
			SyncSrv:  syncSrv,
			Binary:   bin,
			Sessions: sessions,
		},
		configDir:   cfg.ConfigDir,
		cfg:         cfg,
		clientStore: NewClientStore(cfg.ConfigDir),
	}
}

// Start starts the HTTP API server (blocking).
func (s *Server) Start() error {
	addr := s.cfg.Addr()

	// authedMux carries every endpoint that requires the HMAC
	// X-API-Key/X-Timestamp/X-Nonce/X-Signature scheme: the full
	// record CRUD/search/multiread/transactionalChanges/sync/binary/
	// auth surface.
	authedMux := http.NewServeMux()
	authedMux.HandleFunc("GET "+basePath+"/schema", s.api.handleSchema)
	authedMux.HandleFunc("POST "+basePath+"/{table}", s.api.handleTable)
	authedMux.HandleFunc("PUT "+basePath+"/{table}/{pk...}", s.api.handleTable)
	authedMux.HandleFunc("DELETE "+basePath+"/{table}/{pk...}", s.api.handleTable)
	authedMux.HandleFunc("GET "+basePath+"/{table}", s.api.handleTable)
	authedMux.HandleFunc("GET "+basePath+"/{table}/{pk...}", s.api.handleTable)
	authedMux.HandleFunc("POST "+basePath+"/multiread", s.api.handleMultiread)
	authedMux.HandleFunc("POST "+basePath+"/transactionalChanges", s.api.handleTransactionalChanges)
	authedMux.HandleFunc("POST "+basePath+"/syncGetTime", s.api.handleSyncGetTime)
	authedMux.HandleFunc("POST "+basePath+"/sync", s.api.handleSync)
	authedMux.HandleFunc("POST "+basePath+"/saveBinary", s.api.handleSaveBinary)
	authedMux.HandleFunc("GET "+basePath+"/readBinary/{action}/{uid}/{filename...}", s.api.handleReadBinary)
	authedMux.HandleFunc("POST "+basePath+"/auth/user", s.api.handleAuthUser)
	authedMux.HandleFunc("POST "+basePath+"/logout", s.api.handleLogout)

	// top carries the health check unauthenticated alongside the
	// authed subtree, mounted outside AuthMiddleware.
	top := http.NewServeMux()
	top.HandleFunc("GET "+basePath+"/health", handleHealth)
	top.Handle(basePath+"/", AuthMiddleware(s.clientStore)(authedMux))

	handler := RecoveryMiddleware(CORSMiddleware(LoggingMiddleware(SessionMiddleware(s.api.Sessions)(top))))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	log.Printf("[HTTP API] starting HTTP API server: %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP API server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
