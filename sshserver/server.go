package sshserver

import (
	"context"
	"errors"
	"io"
	"net"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"

	"pkt.systems/pmdesk/core"
	"pkt.systems/pmdesk/internal/command"
	"pkt.systems/pmdesk/internal/eventbus"
	"pkt.systems/pmdesk/internal/logx"
	"pkt.systems/pmdesk/schema"
	"pkt.systems/pslog"
)

// CommandHandler routes slash commands.
type CommandHandler interface {
	Handle(ctx context.Context, userID schema.UserID, input string) (command.Result, bool, error)
}

// SessionRecorder counts live console sessions.
type SessionRecorder interface {
	SessionStarted()
	SessionEnded()
}

// Server exposes the workspace as an SSH console.
type Server struct {
	Addr           string
	HostKeyPath    string
	Listener       net.Listener
	Service        core.Service
	Commands       CommandHandler
	Prompt         string
	AuthorizedKeys *AuthorizedKeys
	EventBus       *eventbus.Bus
	Metrics        SessionRecorder
	logger         pslog.Logger
}

// ListenAndServe starts the SSH server and shuts down on context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Prompt == "" {
		s.Prompt = "> "
	}
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	if s.Service == nil {
		return errors.New("service is required for SSH")
	}
	if s.AuthorizedKeys == nil {
		return errors.New("authorized keys are required for SSH")
	}

	signer, err := EnsureHostKey(s.HostKeyPath)
	if err != nil {
		return err
	}

	server := &gliderssh.Server{
		Addr:             s.Addr,
		Handler:          s.handleSession,
		PublicKeyHandler: s.handlePublicKey,
	}
	server.AddHostKey(signer)

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			errCh <- server.Serve(s.Listener)
			return
		}
		errCh <- server.ListenAndServe()
	}()
	addr := s.Addr
	if s.Listener != nil {
		addr = s.Listener.Addr().String()
	}
	s.logger.Info("ssh listening", "addr", addr, "authorized_keys", s.AuthorizedKeys.Len())

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		if errors.Is(err, gliderssh.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	fingerprint := ssh.FingerprintSHA256(key)
	remote := remoteAddr(ctx)
	userID := schema.UserID(ctx.User())
	if err := schema.ValidateUserID(userID); err != nil {
		log.Warn("ssh pubkey rejected", "reason", "invalid user", "remote", remote, "fingerprint", fingerprint, "err", err)
		return false
	}
	log = log.With("user", userID, "remote", remote, "fingerprint", fingerprint)
	if sshSession := ctx.SessionID(); sshSession != "" {
		log = log.With("ssh_session", sshSession)
	}
	ok, err := s.AuthorizedKeys.Allowed(key)
	if err != nil {
		log.Warn("ssh pubkey rejected", "err", err)
		return false
	}
	if !ok {
		log.Warn("ssh pubkey rejected", "reason", "no matching key")
		return false
	}
	log.Info("ssh pubkey accepted")
	return true
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}

func (s *Server) handleSession(sess gliderssh.Session) {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(sess.Context())
	}
	userID := schema.UserID(sess.User())
	remote := sess.RemoteAddr().String()
	log = log.With("user", userID, "remote", remote)
	if sshSession := sess.Context().SessionID(); sshSession != "" {
		log = log.With("ssh_session", sshSession)
	}
	ctx := logx.ContextWithUserLogger(sess.Context(), log, userID)

	pty, winCh, ok := sess.Pty()
	if !ok {
		log.Info("ssh session rejected", "reason", "pty required")
		_, _ = io.WriteString(sess, "pty required\n")
		return
	}

	if s.Metrics != nil {
		s.Metrics.SessionStarted()
		defer s.Metrics.SessionEnded()
	}
	log.Info("ssh session opened", "term", pty.Term)
	var events <-chan schema.WorkspaceEvent
	if s.EventBus != nil {
		var unsubscribe func()
		events, unsubscribe = s.EventBus.Subscribe(userID)
		defer unsubscribe()
	}
	ui := newConsole(sess, newRenderer(sess, pty.Term), s.Service, s.Commands, userID, s.Prompt, events)
	ui.SetSize(pty.Window.Width, pty.Window.Height)
	if err := ui.Run(ctx, winCh); err != nil {
		log.Warn("ssh session ended with error", "err", err)
	}
	log.Info("ssh session closed", "term", pty.Term)
}
