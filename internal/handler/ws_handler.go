package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/quizhive/proctor-backend/internal/middleware"
	"github.com/quizhive/proctor-backend/internal/model"
	"github.com/quizhive/proctor-backend/internal/proctor"
	"github.com/quizhive/proctor-backend/internal/progress"
	"github.com/quizhive/proctor-backend/internal/session"
	ws "github.com/quizhive/proctor-backend/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the per-session WebSocket event stream. The stream is
// the only write path into a live controller: intents and environmental
// events arrive as client frames, state frames flow back after every
// accepted event. The gateway holds no counting or threshold logic.
type WSHandler struct {
	manager  *session.Manager
	results  progress.ResultStore
	rdb      *redis.Client
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(manager *session.Manager, results progress.ResultStore, rdb *redis.Client, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		manager:  manager,
		results:  results,
		rdb:      rdb,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// safeConn serializes writes; gorilla connections allow one writer at a time
// and frames originate from both the read loop and the notify pump.
type safeConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *safeConn) writeTyped(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ws.WriteTyped(s.conn, v)
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id/stream
// Attaches to the live session controller for this session (creating it on
// first connect) and streams state frames until the session rests.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	token := middleware.GetBearerToken(c)
	sessionID := claims.SessionID

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	sc := &safeConn{conn: conn}

	ctrl, attached, err := h.manager.Attach(c.Request.Context(), sessionID, claims.QuizID, token)
	if err != nil {
		ws.WriteError(conn, "failed to load quiz")
		return
	}

	wsLog := h.log.With().
		Str("session_id", sessionID).
		Str("quiz_id", claims.QuizID).
		Logger()
	wsLog.Info().Bool("reattached", attached).Msg("Client connected")

	// Violation events route through the monitor so the audit trail and the
	// controller counters stay in lockstep.
	connCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := proctor.NewChannelSource(16)
	monitor := proctor.NewMonitor(sessionID, ctrl, h.rdb, wsLog)
	monitorDone := make(chan struct{})
	go func() {
		monitor.Watch(connCtx, src)
		close(monitorDone)
	}()

	// Coalescing notify pump: each controller change queues at most one
	// pending state frame.
	updates := make(chan struct{}, 1)
	ctrl.SetNotify(func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	defer ctrl.SetNotify(nil)

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for {
			select {
			case <-connCtx.Done():
				return
			case <-updates:
				if !h.pushState(connCtx, sc, ctrl, wsLog) {
					return
				}
			}
		}
	}()

	// Initial frame so a reattaching client renders immediately.
	sc.writeTyped(ws.StateFrame{Event: ws.EventState, State: ctrl.View()})

	for {
		var msg ws.RequestPayload
		err := ws.ReadJSON(conn, &msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		h.dispatch(connCtx, sc, ctrl, src, &msg, wsLog)

		if ctrl.Phase().Terminal() {
			break
		}
	}

	cancel()
	src.Close()
	<-monitorDone
	<-pumpDone
}

// dispatch routes one client frame into the controller.
func (h *WSHandler) dispatch(ctx context.Context, sc *safeConn, ctrl *session.Controller, src *proctor.ChannelSource, msg *ws.RequestPayload, wsLog zerolog.Logger) {
	switch msg.Action {
	case ws.ActionSelectOption:
		if msg.QuestionID == "" || msg.Option == "" {
			sc.writeTyped(ws.ErrorResponse{Event: ws.EventError, Error: "question_id and option are required"})
			return
		}
		ctrl.SelectOption(msg.QuestionID, msg.Option)
	case ws.ActionToggleBookmark:
		if msg.QuestionID == "" {
			sc.writeTyped(ws.ErrorResponse{Event: ws.EventError, Error: "question_id is required"})
			return
		}
		ctrl.ToggleBookmark(msg.QuestionID)
	case ws.ActionNavigate:
		ctrl.Navigate(msg.Index)
	case ws.ActionNext:
		ctrl.Next()
	case ws.ActionPrevious:
		ctrl.Previous()
	case ws.ActionSubmit:
		ctrl.Submit(ctx, msg.Force)
	case ws.ActionCancelSubmit:
		ctrl.CancelSubmit()
	case ws.ActionConfirmSubmit:
		ctrl.ConfirmSubmit(ctx)
	case ws.ActionAckFullscreen:
		ctrl.AcknowledgeFullscreenWarning()
	case ws.ActionTabHidden:
		src.Emit(proctor.Event{Kind: model.ViolationTabSwitch, Payload: msg.Payload})
	case ws.ActionFullscreenExit:
		src.Emit(proctor.Event{Kind: model.ViolationFullscreenExit, Payload: msg.Payload})
	case ws.ActionPing:
		sc.writeTyped(ws.PongResponse{Event: ws.EventPong})
	default:
		wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		sc.writeTyped(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)})
	}
}

// pushState sends the current state frame, plus the dedicated submitted /
// terminated frame once the session rests. Returns false when the pump
// should stop.
func (h *WSHandler) pushState(ctx context.Context, sc *safeConn, ctrl *session.Controller, wsLog zerolog.Logger) bool {
	view := ctrl.View()
	if err := sc.writeTyped(ws.StateFrame{Event: ws.EventState, State: view}); err != nil {
		return false
	}

	if view.FullscreenWarning != nil {
		sc.writeTyped(ws.WarningFrame{Event: ws.EventWarning, Count: view.FullscreenWarning.Count})
	}

	if view.Phase != model.PhaseSubmitted {
		return true
	}

	frame := ws.SubmittedFrame{Event: ws.EventSubmitted, TerminationReason: view.TerminationReason}
	if view.Terminated {
		frame.Event = ws.EventTerminated
	}
	if res, err := h.results.LoadResult(ctx, ctrl.SessionID()); err != nil {
		wsLog.Error().Err(err).Msg("Result load failed")
	} else if res != nil {
		frame.Result = res.Raw
	}
	sc.writeTyped(frame)

	h.manager.Release(ctrl.SessionID())
	wsLog.Info().Str("reason", view.TerminationReason).Msg("Session rested, controller released")
	return false
}
