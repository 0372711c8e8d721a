package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	fakeAuthCode    = "test-auth-code"
	fakeAccessToken = "test-access-token"
	fakeEmail       = "ada@leansocial.test"
)

// FakeOIDCServer is an identity provider that approves every sign-in
type FakeOIDCServer struct {
	server *http.Server
	port   string
}

// NewFakeOIDCServer creates a fake provider on port
func NewFakeOIDCServer(port string) *FakeOIDCServer {
	mux := http.NewServeMux()

	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		redirectURI := r.URL.Query().Get("redirect_uri")
		state := r.URL.Query().Get("state")
		http.Redirect(w, r, fmt.Sprintf("%s?code=%s&state=%s", redirectURI, fakeAuthCode, state), http.StatusFound)
	})

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if r.FormValue("code") != fakeAuthCode {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":             "invalid_grant",
				"error_description": "Invalid authorization code",
			})
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  fakeAccessToken,
			"refresh_token": "test-refresh-token",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})

	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":            "user-1",
			"email":          fakeEmail,
			"email_verified": true,
			"name":           "Ada",
		})
	})

	return &FakeOIDCServer{
		server: &http.Server{Addr: "127.0.0.1:" + port, Handler: mux},
		port:   port,
	}
}

func (m *FakeOIDCServer) Start() error {
	return startFake(m.server)
}

func (m *FakeOIDCServer) Stop() error {
	return stopFake(m.server)
}

// FakeAPIServer is the LeanSocial backend; /v1/me requires the session token
type FakeAPIServer struct {
	server *http.Server
	port   string
}

// NewFakeAPIServer creates a fake backend on port
func NewFakeAPIServer(port string) *FakeAPIServer {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "version": "test"})
	})

	mux.HandleFunc("/v1/me", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer "+fakeAccessToken {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "unauthorized"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "user-1", "email": fakeEmail})
	})

	return &FakeAPIServer{
		server: &http.Server{Addr: "127.0.0.1:" + port, Handler: mux},
		port:   port,
	}
}

func (s *FakeAPIServer) Start() error {
	return startFake(s.server)
}

func (s *FakeAPIServer) Stop() error {
	return stopFake(s.server)
}

func startFake(server *http.Server) error {
	l, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := server.Serve(l); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()
	return nil
}

func stopFake(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
