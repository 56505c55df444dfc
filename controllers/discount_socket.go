package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"discount-service/middleware"
	"discount-service/models"
	"discount-service/pkg/logger"
	"discount-service/services"
	"discount-service/views"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxFrameSize = 4096
)

// Server frame types.
const (
	FrameTree            = "tree"
	FrameCreateRequested = "create_requested"
	FrameError           = "error"
)

// Subscriber is satisfied by *notifications.Hub.
type Subscriber interface {
	Subscribe(storeID string) (<-chan int, func())
}

// ClientFrame is a click sent by the browser.
type ClientFrame struct {
	Action views.Action `json:"action"`
	ID     string       `json:"id"`
}

// ServerFrame is pushed to the browser.
type ServerFrame struct {
	Type     string      `json:"type"`
	Version  int         `json:"version,omitempty"`
	Rows     []views.Row `json:"rows,omitempty"`
	ParentID string      `json:"parent_id,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// SocketController serves live discount tree sessions over websockets.
type SocketController struct {
	discountService services.DiscountService
	hub             Subscriber
	upgrader        websocket.Upgrader
	logger          *zap.Logger
}

// NewSocketController accepts upgrades from allowedOrigins ("*" allows any)
// and from clients that send no Origin header.
func NewSocketController(discountService services.DiscountService, hub Subscriber, allowedOrigins []string, logger *zap.Logger) *SocketController {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSuffix(o, "/")] = true
	}
	return &SocketController{
		discountService: discountService,
		hub:             hub,
		logger:          logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[strings.TrimSuffix(origin, "/")]
			},
		},
	}
}

// Serve handles GET /stores/:store_id/discounts/ws.
func (sc *SocketController) Serve(ctx *gin.Context) {
	storeID := ctx.Param("store_id")
	log := logger.FromGin(sc.logger, ctx).With(zap.String("store_id", storeID))

	conn, err := sc.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Subscribe before the first load so no change can slip in between.
	changes, unsubscribe := sc.hub.Subscribe(storeID)
	defer unsubscribe()

	s := &session{
		conn:    conn,
		svc:     sc.discountService,
		storeID: storeID,
		manager: middleware.IsManager(ctx),
		logger:  log,
		resolve: views.ResolverWithFallback(nil),
	}
	log.Info("discount session opened", zap.Bool("manager", s.manager))
	s.run(context.Background(), changes)
	log.Info("discount session closed")
}

type inbound struct {
	frame ClientFrame
	err   error
}

// session owns one views.Tree. Everything that touches the tree or writes
// to the connection runs on the goroutine calling run.
type session struct {
	conn    *websocket.Conn
	svc     services.DiscountService
	storeID string
	manager bool
	logger  *zap.Logger

	tree    *views.Tree
	version int
	resolve views.ProductIDToString
	creates []string
	deletes []string
}

func (s *session) handlers() views.Handlers {
	h := views.Handlers{
		OnCreate:          func(parentID string) { s.creates = append(s.creates, parentID) },
		ProductIDToString: func(id string) string { return s.resolve(id) },
	}
	if s.manager {
		h.OnDelete = func(id string) { s.deletes = append(s.deletes, id) }
	}
	return h
}

func (s *session) run(ctx context.Context, changes <-chan int) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	policy, svcErr := s.svc.GetDiscounts(ctx, s.storeID)
	if svcErr != nil {
		_ = s.write(ServerFrame{Type: FrameError, Error: svcErr.Message})
		return
	}
	if err := s.apply(ctx, policy); err != nil {
		_ = s.write(ServerFrame{Type: FrameError, Error: err.Error()})
		return
	}
	if err := s.sendTree(); err != nil {
		return
	}

	frames := make(chan inbound)
	readDone := make(chan error, 1)
	go s.readLoop(ctx, frames, readDone)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case rerr := <-readDone:
			if !websocket.IsCloseError(rerr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", zap.Error(rerr))
			}
			return
		case in := <-frames:
			err = s.handle(ctx, in)
		case v, ok := <-changes:
			if !ok {
				return
			}
			if v > s.version {
				err = s.reload(ctx)
			}
		case <-ticker.C:
			err = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		}
		if err != nil {
			s.logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

func (s *session) readLoop(ctx context.Context, frames chan<- inbound, done chan<- error) {
	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			done <- err
			return
		}
		var in inbound
		if err := json.Unmarshal(data, &in.frame); err != nil {
			in.err = errors.New("invalid frame")
		}
		select {
		case frames <- in:
		case <-ctx.Done():
			return
		}
	}
}

// handle applies one click. Click failures are reported to the client and
// keep the session open; only write errors are returned.
func (s *session) handle(ctx context.Context, in inbound) error {
	if in.err != nil {
		return s.write(ServerFrame{Type: FrameError, Error: in.err.Error()})
	}
	if err := s.tree.Click(in.frame.Action, in.frame.ID); err != nil {
		return s.write(ServerFrame{Type: FrameError, Error: err.Error()})
	}

	switch in.frame.Action {
	case views.ActionAdd:
		creates := s.creates
		s.creates = nil
		for _, parentID := range creates {
			if err := s.write(ServerFrame{Type: FrameCreateRequested, ParentID: parentID}); err != nil {
				return err
			}
		}
		return nil
	case views.ActionDelete:
		deletes := s.deletes
		s.deletes = nil
		for _, id := range deletes {
			policy, svcErr := s.svc.RemoveDiscount(ctx, s.storeID, id)
			if svcErr != nil {
				if err := s.write(ServerFrame{Type: FrameError, Error: svcErr.Message}); err != nil {
					return err
				}
				continue
			}
			if err := s.apply(ctx, policy); err != nil {
				return s.write(ServerFrame{Type: FrameError, Error: err.Error()})
			}
		}
	}
	return s.sendTree()
}

func (s *session) reload(ctx context.Context) error {
	policy, svcErr := s.svc.GetDiscounts(ctx, s.storeID)
	if svcErr != nil {
		return s.write(ServerFrame{Type: FrameError, Error: svcErr.Message})
	}
	if err := s.apply(ctx, policy); err != nil {
		return s.write(ServerFrame{Type: FrameError, Error: err.Error()})
	}
	return s.sendTree()
}

// apply re-supplies the tree with policy unless it is older than what the
// session already shows.
func (s *session) apply(ctx context.Context, policy *models.DiscountPolicy) error {
	if s.tree != nil && policy.Version < s.version {
		return nil
	}
	s.resolve = s.svc.ProductNameResolver(ctx, policy.Root.Root)
	if s.tree == nil {
		tree, err := views.NewTree(policy.Root.Root, s.handlers())
		if err != nil {
			return err
		}
		s.tree = tree
	} else if err := s.tree.Update(policy.Root.Root); err != nil {
		return err
	}
	s.version = policy.Version
	return nil
}

func (s *session) sendTree() error {
	rows, err := s.tree.Rows()
	if err != nil {
		return s.write(ServerFrame{Type: FrameError, Error: err.Error()})
	}
	return s.write(ServerFrame{Type: FrameTree, Version: s.version, Rows: rows})
}

func (s *session) write(f ServerFrame) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(f)
}
