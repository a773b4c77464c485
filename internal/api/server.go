package api

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"fidoochat/internal/auth"
	"fidoochat/internal/domain"
	"fidoochat/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// FeedReader is the read side of the feed store.
type FeedReader interface {
	Feed() domain.Feed
}

type Composer interface {
	SetDraft(text string)
	Draft() string
	Sending() bool
	Submit(ctx context.Context) error
}

type Auth interface {
	Login(ctx context.Context, email, password string) (*auth.User, error)
	Logout(ctx context.Context) error
}

type Server struct {
	echo      *echo.Echo
	feed      FeedReader
	session   session.View
	composer  Composer
	auth      Auth
	templates *template.Template
	sse       *SSEBroker
	log       *zap.Logger
}

type SSEBroker struct {
	clients map[chan string]bool
	mu      sync.RWMutex
}

func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[chan string]bool)}
}

func (b *SSEBroker) Subscribe() chan string {
	ch := make(chan string, 10)
	b.mu.Lock()
	b.clients[ch] = true
	b.mu.Unlock()
	return ch
}

func (b *SSEBroker) Unsubscribe(ch chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.clients[ch] {
		delete(b.clients, ch)
		close(ch)
	}
}

// Close disconnects every client so open event streams return.
func (b *SSEBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		delete(b.clients, ch)
		close(ch)
	}
}

// Broadcast drops the message for clients whose buffer is full.
func (b *SSEBroker) Broadcast(msg string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (b *SSEBroker) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

type MessageView struct {
	ID      string
	Author  string
	Text    string
	TimeAgo string
	Mine    bool
}

type chatPage struct {
	Email    string
	Messages []MessageView
	Draft    string
	Sending  bool
	Notice   string
}

func NewServer(feed FeedReader, sess session.View, comp Composer, a Auth, log *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	log = log.Named("api")

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))
	e.Use(middleware.Recover())

	tmpl := template.Must(template.ParseFS(templateFS, "templates/*.html"))

	s := &Server{
		echo:      e,
		feed:      feed,
		session:   sess,
		composer:  comp,
		auth:      a,
		templates: tmpl,
		sse:       NewSSEBroker(),
		log:       log,
	}

	s.routes()

	return s
}

func (s *Server) routes() {
	s.echo.GET("/", s.index)
	s.echo.GET("/health", s.health)
	s.echo.GET("/login", s.loginPage)
	s.echo.POST("/login", s.login)
	s.echo.POST("/logout", s.logout)
	s.echo.GET("/chat", s.chat)
	s.echo.POST("/chat/send", s.send)
	s.echo.GET("/api/messages", s.getMessages)
	s.echo.GET("/api/events", s.events)
}

func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.sse.Close()
	return s.echo.Shutdown(ctx)
}

func (s *Server) Broadcast(msg string) {
	s.sse.Broadcast(msg)
}

// RenderFeed writes the "messages" fragment for f.
func (s *Server) RenderFeed(w io.Writer, f domain.Feed, me string) error {
	return s.templates.ExecuteTemplate(w, "messages", messageViews(f, me))
}

func (s *Server) index(c echo.Context) error {
	switch {
	case s.session.Loading():
		return s.render(c, http.StatusOK, "loading.html", nil)
	case s.session.Current().Authenticated():
		return c.Redirect(http.StatusSeeOther, "/chat")
	default:
		return c.Redirect(http.StatusSeeOther, "/login")
	}
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) loginPage(c echo.Context) error {
	if s.session.Loading() {
		return s.render(c, http.StatusOK, "loading.html", nil)
	}
	if s.session.Current().Authenticated() {
		return c.Redirect(http.StatusSeeOther, "/chat")
	}
	return s.render(c, http.StatusOK, "login.html", map[string]string{})
}

func (s *Server) login(c echo.Context) error {
	email := strings.TrimSpace(c.FormValue("email"))
	password := c.FormValue("password")

	if email == "" || password == "" {
		return s.render(c, http.StatusBadRequest, "login.html", map[string]string{
			"Email": email,
			"Error": "Email y contraseña son obligatorios",
		})
	}

	if _, err := s.auth.Login(c.Request().Context(), email, password); err != nil {
		return s.render(c, http.StatusUnauthorized, "login.html", map[string]string{
			"Email": email,
			"Error": loginError(err),
		})
	}

	return c.Redirect(http.StatusSeeOther, "/chat")
}

func (s *Server) logout(c echo.Context) error {
	if err := s.auth.Logout(c.Request().Context()); err != nil {
		s.log.Error("logout", zap.Error(err))
		return c.String(http.StatusInternalServerError, "No se pudo cerrar sesión")
	}
	return c.Redirect(http.StatusSeeOther, "/login")
}

func (s *Server) chat(c echo.Context) error {
	if s.session.Loading() {
		return s.render(c, http.StatusOK, "loading.html", nil)
	}
	if !s.session.Current().Authenticated() {
		return c.Redirect(http.StatusSeeOther, "/login")
	}
	return s.render(c, http.StatusOK, "chat.html", s.page(""))
}

func (s *Server) send(c echo.Context) error {
	s.composer.SetDraft(c.FormValue("message"))

	err := s.composer.Submit(c.Request().Context())
	if err == nil {
		if isHTMX(c) {
			return s.render(c, http.StatusOK, "composer", s.page(""))
		}
		return c.Redirect(http.StatusSeeOther, "/chat")
	}

	status, notice := sendError(err)
	if status == http.StatusUnauthorized && !isHTMX(c) && !s.session.Current().Authenticated() {
		return c.Redirect(http.StatusSeeOther, "/login")
	}

	// htmx only swaps 2xx responses, so the fragment carrying the notice
	// goes out as 200.
	if isHTMX(c) {
		return s.render(c, http.StatusOK, "composer", s.page(notice))
	}
	return s.render(c, status, "chat.html", s.page(notice))
}

func (s *Server) getMessages(c echo.Context) error {
	f := s.feed.Feed()
	if f == nil {
		f = domain.Feed{}
	}
	return c.JSON(http.StatusOK, f)
}

func (s *Server) events(c echo.Context) error {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")

	ch := s.sse.Subscribe()
	defer s.sse.Unsubscribe(ch)

	// Current state first so a fresh page does not wait for the next change.
	var initial strings.Builder
	if err := s.RenderFeed(&initial, s.feed.Feed(), s.session.Current().Email()); err != nil {
		return err
	}
	writeEvent(c.Response(), initial.String())
	c.Response().Flush()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			writeEvent(c.Response(), msg)
			c.Response().Flush()
		}
	}
}

func writeEvent(w io.Writer, msg string) {
	fmt.Fprintf(w, "event: feed\n")
	for _, line := range strings.Split(msg, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprintf(w, "\n")
}

func (s *Server) page(notice string) chatPage {
	me := s.session.Current().Email()
	return chatPage{
		Email:    me,
		Messages: messageViews(s.feed.Feed(), me),
		Draft:    s.composer.Draft(),
		Sending:  s.composer.Sending(),
		Notice:   notice,
	}
}

func (s *Server) render(c echo.Context, status int, name string, data any) error {
	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	c.Response().WriteHeader(status)
	err := s.templates.ExecuteTemplate(c.Response(), name, data)
	if err != nil {
		s.log.Error("render", zap.String("template", name), zap.Error(err))
	}
	return err
}

func messageViews(f domain.Feed, me string) []MessageView {
	views := make([]MessageView, len(f))
	for i, m := range f {
		views[i] = MessageView{
			ID:      m.ID,
			Author:  m.AuthorLabel,
			Text:    m.Text,
			TimeAgo: timeAgo(m.CreatedAt),
			Mine:    me != "" && m.AuthorLabel == me,
		}
	}
	return views
}

func sendError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "Por favor, inicia sesión para enviar mensajes"
	case errors.Is(err, domain.ErrMissingToken):
		return http.StatusUnauthorized, "No hay token de autorización"
	case errors.Is(err, domain.ErrSendInFlight):
		return http.StatusConflict, "Ya se está enviando un mensaje"
	case errors.Is(err, domain.ErrSendFailed):
		return http.StatusBadGateway, "Error enviando mensaje, inténtalo de nuevo"
	default:
		return http.StatusInternalServerError, "Error enviando mensaje"
	}
}

func loginError(err error) string {
	var apiErr *auth.APIError
	switch {
	case errors.As(err, &apiErr):
		return "Credenciales inválidas"
	case errors.Is(err, domain.ErrTokenRejected):
		return "Token inválido en el backend"
	default:
		return "Error al iniciar sesión"
	}
}

func isHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true"
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
