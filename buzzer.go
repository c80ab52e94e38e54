// Buzzbox rooms over HTTP and WebSockets
//
// A host creates a room, adds teams, players and rounds, and drives the
// buzzer from a host socket. Players join with the room code and their own
// four character join code, then buzz over a player socket.
//
// Routes (all under --prefix):
// - POST /rooms                creates a room owned by the host cookie
// - GET  /rooms                lists rooms owned by the host cookie
// - GET  /rooms/:code          room snapshot (join codes only for the host)
// - GET  /rooms/:code/qr       QR code of the join link
// - GET  /rooms/:code/ws       host socket: commands in, snapshots out
// - GET  /rooms/:code/play     player socket, ?code=<join code>
// - POST /join                 resolves a join code to a player identity

package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Seednode/buzzbox/internal/room"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"
)

const (
	hostCookieName = "buzzbox_host"
	qrSize         = 320

	// Joins are limited per address, which a whole venue may share.
	joinRate  = rate.Limit(5)
	joinBurst = 100
)

var errForbidden = errors.New("only the host of this room may do that")

// snapshotMessage carries a room view. Identity is set on player sockets.
type snapshotMessage struct {
	Type     string         `json:"type"`
	Identity *room.Identity `json:"identity,omitempty"`
	Room     roomView       `json:"room"`
}

// resultMessage acknowledges a host command.
type resultMessage struct {
	Type   string      `json:"type"`
	Op     string      `json:"op"`
	Toggle room.Toggle `json:"toggle,omitempty"`
	Round  *roundView  `json:"round,omitempty"`
	Player *playerView `json:"player,omitempty"`
	Score  string      `json:"score,omitempty"`
}

type buzzMessage struct {
	Type   string `json:"type"`
	Rank   int    `json:"rank,omitempty"`
	Seq    uint64 `json:"seq,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Op      string `json:"op,omitempty"`
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

func newErrorMessage(op string, err error) errorMessage {
	msg := errorMessage{
		Type:    "error",
		Op:      op,
		Error:   kindOf(err),
		Reason:  string(room.ReasonOf(err)),
		Message: err.Error(),
	}
	if msg.Error == "internal" {
		msg.Message = "internal error"
	}
	return msg
}

type roomSummary struct {
	Code      string      `json:"code"`
	Status    room.Status `json:"status"`
	Round     int         `json:"round"`
	Players   int         `json:"players"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type joinRequest struct {
	Room string `json:"room"`
	Code string `json:"code"`
}

type joinResponse struct {
	Identity room.Identity `json:"identity"`
	Socket   string        `json:"socket"`
}

// buzzer serves rooms from one room.Service. ctx bounds every socket so
// they end when the server shuts down.
type buzzer struct {
	ctx    context.Context
	cfg    *Config
	svc    *room.Service
	logger *slog.Logger
	joins  *clientLimiter
}

func newBuzzer(ctx context.Context, cfg *Config, svc *room.Service, logger *slog.Logger) *buzzer {
	return &buzzer{
		ctx:    ctx,
		cfg:    cfg,
		svc:    svc,
		logger: logger,
		joins:  newClientLimiter(joinRate, joinBurst),
	}
}

func getOrSetHostID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(hostCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     hostCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

func isHost(r *http.Request, rm *room.Room) bool {
	c, err := r.Cookie(hostCookieName)
	return err == nil && c.Value != "" && c.Value == rm.HostID
}

func (b *buzzer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(b.cfg, w)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		b.logger.Debug("SERVE: failed to write response", "error", err)
	}
}

func (b *buzzer) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusOf(err)
	if errors.Is(err, errForbidden) {
		status = http.StatusForbidden
	}

	if status == http.StatusInternalServerError {
		b.logger.Error("SERVE: request failed", "op", op, "path", r.URL.Path, "ip", realIP(r), "error", err)
	} else {
		b.logger.Debug("SERVE: request rejected", "op", op, "path", r.URL.Path, "ip", realIP(r), "error", err)
	}

	msg := newErrorMessage(op, err)
	if status == http.StatusForbidden {
		msg.Error = "forbidden"
		msg.Message = err.Error()
	}
	b.writeJSON(w, status, msg)
}

func (b *buzzer) serveCreateRoom() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		hostID := getOrSetHostID(w, r)

		rm, err := b.svc.CreateRoom(r.Context(), hostID)
		if err != nil {
			b.writeError(w, r, "create_room", err)
			return
		}

		w.Header().Set("Location", b.cfg.prefix+"/rooms/"+rm.Code)
		b.writeJSON(w, http.StatusCreated, newRoomView(rm, true))

		b.logger.Info("SERVE: created room",
			"room", rm.Code,
			"ip", realIP(r),
			"duration", time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func (b *buzzer) serveListRooms() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		summaries := []roomSummary{}

		c, err := r.Cookie(hostCookieName)
		if err != nil || c.Value == "" {
			b.writeJSON(w, http.StatusOK, summaries)
			return
		}

		rooms, err := b.svc.ListRooms(r.Context(), c.Value)
		if err != nil {
			b.writeError(w, r, "list_rooms", err)
			return
		}

		for _, rm := range rooms {
			summaries = append(summaries, roomSummary{
				Code:      rm.Code,
				Status:    rm.Status(),
				Round:     rm.Round,
				Players:   len(rm.Players),
				CreatedAt: rm.CreatedAt,
				UpdatedAt: rm.UpdatedAt,
			})
		}

		b.writeJSON(w, http.StatusOK, summaries)
	}
}

func (b *buzzer) serveRoom() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		rm, err := b.svc.Get(r.Context(), ps.ByName("code"))
		if err != nil {
			b.writeError(w, r, "get_room", err)
			return
		}

		b.writeJSON(w, http.StatusOK, newRoomView(rm, isHost(r, rm)))
	}
}

// joinURL is the link players open to join code, honouring TLS and
// X-Forwarded-Proto.
func joinURL(r *http.Request, prefix, code string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host + prefix + "/?room=" + url.QueryEscape(code)
}

func (b *buzzer) serveQR() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		rm, err := b.svc.Get(r.Context(), ps.ByName("code"))
		if err != nil {
			b.writeError(w, r, "qr", err)
			return
		}

		png, err := qrcode.Encode(joinURL(r, b.cfg.prefix, rm.Code), qrcode.Medium, qrSize)
		if err != nil {
			b.writeError(w, r, "qr", err)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(b.cfg, w)
		_, _ = w.Write(png)
	}
}

func (b *buzzer) serveJoin() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if !b.joins.allow(r) {
			b.writeJSON(w, http.StatusTooManyRequests, errorMessage{
				Type:    "error",
				Op:      "join",
				Error:   "rate_limited",
				Message: "too many join attempts",
			})
			return
		}

		var req joinRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize)).Decode(&req); err != nil {
			b.writeJSON(w, http.StatusBadRequest, errorMessage{
				Type:    "error",
				Op:      "join",
				Error:   "validation_rejected",
				Reason:  "malformed_message",
				Message: err.Error(),
			})
			return
		}

		id, err := b.svc.ResolveJoinCode(r.Context(), req.Room, req.Code)
		if err != nil {
			b.writeError(w, r, "join", err)
			return
		}

		b.logger.Info("SERVE: player joined", "room", id.RoomCode, "player", id.Name, "ip", realIP(r))

		b.writeJSON(w, http.StatusOK, joinResponse{
			Identity: id,
			Socket:   b.cfg.prefix + "/rooms/" + id.RoomCode + "/play?code=" + url.QueryEscape(room.NormalizeCode(req.Code)),
		})
	}
}

func (b *buzzer) serveHostSocket() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		rm, err := b.svc.Get(r.Context(), ps.ByName("code"))
		if err != nil {
			b.writeError(w, r, "host_socket", err)
			return
		}
		if !isHost(r, rm) {
			b.writeError(w, r, "host_socket", errForbidden)
			return
		}
		code := rm.Code

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.Debug("SERVE: upgrade failed", "room", code, "error", err)
			return
		}

		ctx, cancel := context.WithCancel(b.ctx)
		defer cancel()

		c := newClient(ctx, conn)
		go c.writePump()

		snaps, err := b.svc.Subscribe(ctx, code)
		if err != nil {
			c.finish(newErrorMessage("subscribe", err))
			c.readPump(func(clientMessage) {})
			return
		}

		b.logger.Debug("SERVE: host connected", "room", code, "ip", realIP(r))

		go func() {
			for snap := range snaps {
				c.push(snapshotMessage{Type: "snapshot", Room: newRoomView(snap.Room, true)})
			}
		}()

		c.readPump(func(msg clientMessage) {
			c.push(b.hostCommand(ctx, code, msg))
		})

		b.logger.Debug("SERVE: host disconnected", "room", code, "ip", realIP(r))
	}
}

// hostCommand runs one host command and returns the reply for the host.
func (b *buzzer) hostCommand(ctx context.Context, code string, msg clientMessage) any {
	res := resultMessage{Type: "result", Op: msg.Type}

	var err error
	switch msg.Type {
	case "toggle":
		res.Toggle, _, err = b.svc.ToggleMain(ctx, code)
	case "reset_buzzes":
		_, err = b.svc.ResetBuzzes(ctx, code)
	case "activate_round":
		_, err = b.svc.ActivateRound(ctx, code, msg.RoundID)
	case "add_round":
		var rd room.Round
		if rd, err = b.svc.AddRound(ctx, code, msg.Timer, msg.Qualifiers); err == nil {
			rv := newRoundView(rd)
			res.Round = &rv
		}
	case "edit_round":
		_, err = b.svc.EditRound(ctx, code, msg.RoundID, msg.Timer, msg.Qualifiers)
	case "add_team":
		_, err = b.svc.AddTeam(ctx, code, msg.Name)
	case "add_player":
		var p *room.Player
		if p, err = b.svc.AddPlayer(ctx, code, msg.Name, msg.Team); err == nil {
			res.Player = &playerView{
				ID:     p.ID,
				Name:   p.Name,
				Team:   p.Team,
				Code:   p.Code,
				Score:  p.Score.String(),
				Active: p.Active,
			}
		}
	case "adjust_score":
		var score decimal.Decimal
		if score, err = b.svc.AdjustScore(ctx, code, msg.PlayerID, msg.Amount); err == nil {
			res.Score = score.String()
		}
	case "set_score":
		_, err = b.svc.SetScore(ctx, code, msg.PlayerID, msg.Amount)
	case "close":
		_, err = b.svc.CloseRoom(ctx, code)
	default:
		return errorMessage{
			Type:    "error",
			Op:      msg.Type,
			Error:   "validation_rejected",
			Reason:  "unknown_command",
			Message: "unknown command " + msg.Type,
		}
	}

	if err != nil {
		return newErrorMessage(msg.Type, err)
	}
	return res
}

func (b *buzzer) servePlayerSocket() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomCode := room.NormalizeCode(ps.ByName("code"))
		playerCode := r.URL.Query().Get("code")

		if !b.joins.allow(r) {
			b.writeJSON(w, http.StatusTooManyRequests, errorMessage{
				Type:    "error",
				Op:      "player_socket",
				Error:   "rate_limited",
				Message: "too many join attempts",
			})
			return
		}

		id, err := b.svc.ResolveJoinCode(r.Context(), roomCode, playerCode)
		if err != nil {
			b.writeError(w, r, "player_socket", err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.Debug("SERVE: upgrade failed", "room", roomCode, "error", err)
			return
		}

		ctx, cancel := context.WithCancel(b.ctx)
		defer cancel()

		c := newClient(ctx, conn)
		go c.writePump()

		updates, err := b.svc.FollowPlayer(ctx, roomCode, playerCode)
		if err != nil {
			c.finish(newErrorMessage("follow", err))
			c.readPump(func(clientMessage) {})
			return
		}

		b.logger.Debug("SERVE: player connected", "room", roomCode, "player", id.Name, "ip", realIP(r))

		go func() {
			for u := range updates {
				if u.Err != nil {
					c.finish(newErrorMessage("follow", u.Err))
					return
				}

				ident := u.Identity
				c.push(snapshotMessage{Type: "snapshot", Identity: &ident, Room: newRoomView(u.Room, false)})
			}
		}()

		buzzes := rate.NewLimiter(rate.Limit(b.cfg.buzzRate), b.cfg.buzzBurst)

		c.readPump(func(msg clientMessage) {
			c.push(b.playerCommand(ctx, buzzes, roomCode, id.PlayerID, msg))
		})

		b.logger.Debug("SERVE: player disconnected", "room", roomCode, "player", id.Name, "ip", realIP(r))
	}
}

// playerCommand handles a message from a player socket. Only buzzes are
// accepted, limited per socket; rejections carry the reason the buzz was
// refused.
func (b *buzzer) playerCommand(ctx context.Context, buzzes *rate.Limiter, code, playerID string, msg clientMessage) any {
	if msg.Type != "buzz" {
		return errorMessage{
			Type:    "error",
			Op:      msg.Type,
			Error:   "validation_rejected",
			Reason:  "unknown_command",
			Message: "players may only buzz",
		}
	}

	if !buzzes.Allow() {
		return buzzMessage{Type: "buzz_rejected", Reason: "rate_limited"}
	}

	res, err := b.svc.AttemptBuzz(ctx, code, playerID)
	switch {
	case room.IsBuzzRejected(err):
		return buzzMessage{Type: "buzz_rejected", Reason: string(room.ReasonOf(err))}
	case err != nil:
		return newErrorMessage("buzz", err)
	}

	return buzzMessage{Type: "buzz_accepted", Rank: res.Rank, Seq: res.Event.Seq}
}

// reaperLoop closes rooms idle for longer than timeout until ctx is done.
func (b *buzzer) reaperLoop(timeout time.Duration) {
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			n, err := b.svc.CloseIdle(b.ctx, time.Now().Add(-timeout))
			if err != nil {
				b.logger.Warn("REAP: failed to close idle rooms", "error", err)
				continue
			}
			if n > 0 {
				b.logger.Info("REAP: closed idle rooms", "count", n)
			}
		}
	}
}

func registerBuzzer(b *buzzer, mux *httprouter.Router) {
	prefix := b.cfg.prefix

	mux.POST(prefix+"/rooms", b.serveCreateRoom())
	mux.GET(prefix+"/rooms", b.serveListRooms())
	mux.GET(prefix+"/rooms/:code", b.serveRoom())
	mux.GET(prefix+"/rooms/:code/qr", b.serveQR())
	mux.GET(prefix+"/rooms/:code/ws", b.serveHostSocket())
	mux.GET(prefix+"/rooms/:code/play", b.servePlayerSocket())
	mux.POST(prefix+"/join", b.serveJoin())

	if b.cfg.sessionTimeout > 0 {
		go b.reaperLoop(b.cfg.sessionTimeout)
	}
}
