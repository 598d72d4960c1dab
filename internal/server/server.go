package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/curtaincall/internal/attendance"
	"github.com/dukerupert/curtaincall/internal/auth"
	"github.com/dukerupert/curtaincall/internal/config"
	"github.com/dukerupert/curtaincall/internal/handler"
	"github.com/dukerupert/curtaincall/internal/metrics"
	"github.com/dukerupert/curtaincall/internal/middleware"
	"github.com/dukerupert/curtaincall/internal/points"
	"github.com/dukerupert/curtaincall/internal/redemption"
	"github.com/dukerupert/curtaincall/internal/store"
	ws "github.com/dukerupert/curtaincall/internal/websocket"
)

type Server struct {
	db          *sql.DB
	cfg         *config.Config
	hub         *ws.Hub
	metrics     *metrics.Metrics
	verifier    *auth.Verifier
	rateLimiter *middleware.RateLimiter
	memberH     *handler.MemberHandler
	groupH      *handler.GroupHandler
	pointsH     *handler.PointsHandler
	attendanceH *handler.AttendanceHandler
	rewardH     *handler.RewardHandler
	catalogH    *handler.CatalogHandler
	eventH      *handler.EventHandler
	reportH     *handler.ReportHandler
	announceH   *handler.AnnouncementHandler
	parentH     *handler.ParentHandler
	links       *store.LinkStore
	logger      *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *Server {
	hub := ws.NewHub(m, logger.With("component", "websocket"))

	memberStore := store.NewMemberStore(db)
	groupStore := store.NewGroupStore(db)
	pointsStore := store.NewPointsStore(db)
	registerStore := store.NewRegisterStore(db)
	catalogStore := store.NewCatalogStore(db)
	rewardStore := store.NewRewardStore(db)
	eventStore := store.NewEventStore(db)
	reportStore := store.NewReportStore(db)
	announcementStore := store.NewAnnouncementStore(db)
	linkStore := store.NewLinkStore(db)

	pointsSvc := points.NewService(pointsStore, m, cfg.Location, logger)
	attendanceSvc := attendance.NewService(memberStore, groupStore, registerStore, m, cfg.Location, logger)
	redemptionSvc := redemption.NewService(rewardStore, catalogStore, m, logger)

	return &Server{
		db:          db,
		cfg:         cfg,
		hub:         hub,
		metrics:     m,
		verifier:    auth.NewVerifier([]byte(cfg.TokenSecret), cfg.TokenIssuer),
		rateLimiter: middleware.NewRateLimiter(),
		memberH:     handler.NewMemberHandler(memberStore, hub, logger.With("component", "member")),
		groupH:      handler.NewGroupHandler(groupStore, memberStore, hub, logger.With("component", "group")),
		pointsH:     handler.NewPointsHandler(pointsSvc, hub, logger.With("component", "points_handler")),
		attendanceH: handler.NewAttendanceHandler(attendanceSvc, hub, logger.With("component", "attendance_handler")),
		rewardH:     handler.NewRewardHandler(redemptionSvc, memberStore, hub, logger.With("component", "reward")),
		catalogH:    handler.NewCatalogHandler(catalogStore, hub, logger.With("component", "catalog")),
		eventH:      handler.NewEventHandler(eventStore, memberStore, hub, logger.With("component", "event")),
		reportH:     handler.NewReportHandler(reportStore, memberStore, hub, logger.With("component", "report")),
		announceH:   handler.NewAnnouncementHandler(announcementStore, hub, logger.With("component", "announcement")),
		parentH:     handler.NewParentHandler(linkStore, memberStore, hub, logger.With("component", "parent")),
		links:       linkStore,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Router registers every route on a single mux so request logging and
// metrics can label requests by their matched pattern.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", s.metrics.Handler())

	verify := middleware.RequireSession(s.verifier)
	loadChildren := middleware.LoadChildren(s.links, s.logger)
	requireSession := func(h http.Handler) http.Handler {
		return verify(loadChildren(h))
	}
	session := func(h http.HandlerFunc) http.Handler {
		return requireSession(h)
	}
	staff := func(h http.HandlerFunc) http.Handler {
		return requireSession(middleware.RequireStaff(h))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return requireSession(middleware.RequireAdmin(h))
	}
	parent := func(h http.HandlerFunc) http.Handler {
		return requireSession(middleware.RequireParent(h))
	}

	// Members
	mux.Handle("GET /api/members", staff(s.memberH.List))
	mux.Handle("POST /api/members", staff(s.memberH.Create))
	mux.Handle("GET /api/members/{id}", session(s.memberH.Get))
	mux.Handle("POST /api/members/{id}/pin", session(s.memberH.SetPIN))
	mux.Handle("GET /api/members/{id}/link-code", session(s.parentH.LinkCode))

	// Parents
	linkLimit := middleware.RateLimit(s.rateLimiter, linkKey, s.cfg.CollectCodeLimit, s.cfg.CollectCodeWindow)
	mux.Handle("POST /api/parent/children",
		requireSession(middleware.RequireParent(linkLimit(http.HandlerFunc(s.parentH.Link)))))
	mux.Handle("GET /api/parent/children", parent(s.parentH.Children))
	mux.Handle("DELETE /api/parent/children/{id}", parent(s.parentH.Unlink))

	// Points
	mux.Handle("GET /api/points/options", session(s.pointsH.Options))
	mux.Handle("POST /api/members/{id}/points", staff(s.pointsH.Award))
	mux.Handle("GET /api/members/{id}/points", session(s.pointsH.Balance))
	mux.Handle("GET /api/members/{id}/points-log", session(s.pointsH.Log))

	// Rewards
	mux.Handle("POST /api/members/{id}/rewards", session(s.rewardH.Redeem))
	mux.Handle("GET /api/members/{id}/rewards", session(s.rewardH.List))
	mux.Handle("GET /api/rewards/{member_id}/{reward_id}/qr", session(s.rewardH.QR))
	mux.Handle("GET /api/rewards/outstanding", staff(s.rewardH.Outstanding))
	mux.Handle("POST /api/rewards/collect", staff(s.rewardH.Collect))
	codeLimit := middleware.RateLimit(s.rateLimiter, middleware.SessionKey, s.cfg.CollectCodeLimit, s.cfg.CollectCodeWindow)
	mux.Handle("POST /api/rewards/collect-code",
		requireSession(middleware.RequireStaff(codeLimit(http.HandlerFunc(s.rewardH.CollectCode)))))

	// Catalog
	mux.Handle("GET /api/catalog", session(s.catalogH.List))
	mux.Handle("POST /api/catalog", staff(s.catalogH.Create))
	mux.Handle("PUT /api/catalog/{id}", staff(s.catalogH.Update))
	mux.Handle("DELETE /api/catalog/{id}", staff(s.catalogH.Delete))

	// Groups and attendance
	mux.Handle("GET /api/groups", staff(s.groupH.List))
	mux.Handle("POST /api/groups", staff(s.groupH.Create))
	mux.Handle("GET /api/groups/{id}/members", staff(s.groupH.Members))
	mux.Handle("POST /api/groups/{id}/members/{member_id}", staff(s.groupH.AddMember))
	mux.Handle("DELETE /api/groups/{id}/members/{member_id}", staff(s.groupH.RemoveMember))
	mux.Handle("POST /api/groups/{id}/registers", staff(s.attendanceH.Submit))
	mux.Handle("GET /api/groups/{id}/registers", staff(s.attendanceH.List))
	mux.Handle("GET /api/groups/{id}/registers/{date}", staff(s.attendanceH.Get))

	// Events
	mux.Handle("GET /api/events", session(s.eventH.List))
	mux.Handle("POST /api/events", staff(s.eventH.Create))
	mux.Handle("POST /api/events/{id}/rsvp", session(s.eventH.RSVP))
	mux.Handle("GET /api/events/{id}/attendees", staff(s.eventH.Attendees))

	// Incident reports
	mux.Handle("POST /api/reports", staff(s.reportH.Create))
	mux.Handle("GET /api/reports", admin(s.reportH.List))
	mux.Handle("GET /api/reports/{id}", admin(s.reportH.Get))

	// Announcements
	mux.Handle("GET /api/announcements", session(s.announceH.List))
	mux.Handle("POST /api/announcements", admin(s.announceH.Create))
	mux.Handle("PUT /api/announcements/{id}", admin(s.announceH.Update))
	mux.Handle("DELETE /api/announcements/{id}", admin(s.announceH.Delete))

	// WebSocket
	mux.Handle("GET /ws", session(ws.HandleWebSocket(s.hub, s.cfg.AllowedOrigins)))

	return middleware.RequestLogger(s.logger.With("component", "http"), s.metrics)(mux)
}

// linkKey keeps link-code guesses in their own rate limit window, apart from
// collect-code attempts by the same user.
func linkKey(r *http.Request) string {
	return "link:" + middleware.SessionKey(r)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
