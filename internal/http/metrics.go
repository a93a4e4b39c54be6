package httpapi

import (
	"net/http"
	"time"

	"tradehub-admin/internal/logging"
	"tradehub-admin/internal/services"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type MetricsHistoryResponse struct {
	Items []services.MetricSample `json:"items"`
}

func (s *Server) MetricsHistory(w http.ResponseWriter, r *http.Request) {
	fallback := s.Config.MetricsHistory
	if fallback <= 0 {
		fallback = 120
	}
	limit := parseInt(r.URL.Query().Get("limit"), fallback)
	if limit > 500 {
		limit = 500
	}
	items, err := services.LatestMetrics(r.Context(), s.DB, limit)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, MetricsHistoryResponse{Items: items})
}

func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := services.LoadStats(r.Context(), s.DB, s.Catalog, s.Images, s.Cache)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// Events upgrades to a websocket that receives change and metrics events.
// Browsers cannot set headers on the handshake, so the token comes in the
// query string. The socket closes once its session ends, whether or not the
// client ever sends a frame.
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	sess, ok := authenticate(s.Tokens, s.Sessions, r.URL.Query().Get("token"))
	if !ok {
		WriteError(w, http.StatusUnauthorized, "Authentication failed")
		return
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.FromContext(r.Context()).Warn("websocket upgrade", zap.Error(err))
		return
	}
	s.Hub.Add(conn)
	defer func() {
		s.Hub.Remove(conn)
		_ = conn.Close()
	}()

	done := make(chan struct{})
	defer close(done)
	go watchSession(done, s.SessionCheck, func() bool {
		_, ok := s.Sessions.Get(sess.ID)
		return ok
	}, func() {
		s.Hub.Remove(conn)
		// WriteControl and Close may run concurrently with the read loop;
		// closing unblocks ReadMessage below.
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session ended"), time.Now().Add(time.Second))
		_ = conn.Close()
	})

	conn.SetReadLimit(4096)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// watchSession calls alive every interval and runs ended once alive reports
// false. It returns when done is closed.
func watchSession(done <-chan struct{}, interval time.Duration, alive func() bool, ended func()) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !alive() {
				ended()
				return
			}
		}
	}
}
