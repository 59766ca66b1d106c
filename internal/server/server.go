package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"cipherchat/internal/domain"
	"cipherchat/internal/hub"
	"cipherchat/internal/repository"
)

// maxBody bounds JSON request bodies.
const maxBody = 1 << 20

// Deps are the collaborators of the relay API.
type Deps struct {
	Messages repository.MessageRepository
	Receipts repository.ReceiptRepository
	Keys     repository.KeyRepository
	Groups   repository.GroupRepository
	Hub      *hub.Hub
	Secret   []byte
	Log      *zap.Logger
	Now      func() time.Time

	// AllowedOrigins feeds the CORS policy; empty allows any origin.
	AllowedOrigins []string
}

// Server serves the relay API.
type Server struct {
	messages repository.MessageRepository
	receipts repository.ReceiptRepository
	keys     repository.KeyRepository
	groups   repository.GroupRepository
	hub      *hub.Hub
	secret   []byte
	log      *zap.Logger
	now      func() time.Time
	origins  []string
}

// New constructs a Server. Log and Now are optional.
func New(d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Server{
		messages: d.Messages,
		receipts: d.Receipts,
		keys:     d.Keys,
		groups:   d.Groups,
		hub:      d.Hub,
		secret:   d.Secret,
		log:      d.Log,
		now:      d.Now,
		origins:  d.AllowedOrigins,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(s.log))
	r.Use(Recover(s.log))
	r.Use(s.cors())

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(Authenticate(s.secret))

		r.Post("/messages", s.submitMessage)
		r.Get("/messages", s.listMessages)
		r.Post("/receipts", s.submitReceipt)
		r.Post("/keys", s.publishBundle)
		r.Get("/keys/{userID}", s.fetchBundle)
		r.Post("/groups", s.createGroup)
		r.Get("/groups/{groupID}", s.getGroup)
		r.Get("/ws", s.serveWS)
	})
	return r
}

func (s *Server) cors() func(http.Handler) http.Handler {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	})
}

// notify pushes a frame to every live connection of user.
func (s *Server) notify(user domain.UserID, typ string, payload any) {
	f, err := domain.NewFrame(typ, payload)
	if err == nil {
		err = s.hub.SendToUser(user, f)
	}
	if err != nil {
		s.log.Warn("notify failed", zap.String("user", user.String()), zap.String("type", typ), zap.Error(err))
	}
}
