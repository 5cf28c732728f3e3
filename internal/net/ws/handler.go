package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	nethttp "net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"hollowgrove/bot/internal/net/proto"
	"hollowgrove/bot/internal/raid"
)

// RaidService is the engine surface the gateway drives.
type RaidService interface {
	Attack(ctx context.Context, uid, name string) (raid.AttackResult, error)
	Snapshot() raid.BossState
	Participants(minDamage int) []raid.Participant
	ClaimDaily(uid string) (raid.ClaimResult, error)
	BuyEnergy(uid string, amount int) (raid.BuyResult, error)
	EnergyStatusFor(uid string) (raid.EnergyStatus, error)

	Spawn(ctx context.Context, params raid.SpawnParams) (raid.BossState, error)
	UsePreset(ctx context.Context, key string, hp int) (raid.BossState, error)
	SetHP(ctx context.Context, hp int) (raid.BossState, error)
	SetWeakness(ctx context.Context, slug string) (raid.BossState, error)
	AddShield(ctx context.Context, kind string, pct float64) (raid.BossState, error)
	ClearShield(ctx context.Context) (raid.BossState, error)
	Wipe(ctx context.Context) (raid.BossState, error)
	RotateNow(ctx context.Context) (raid.BossState, error)
	SetRotate(ctx context.Context, enabled *bool, minutes *int) (raid.BossState, error)
}

// CatalogReloader is the explicit admin catalog reload hook.
type CatalogReloader interface {
	ReloadCatalog() error
}

type HandlerConfig struct {
	AdminToken   string
	Catalog      CatalogReloader // optional
	Logger       *logrus.Entry
	CommandRate  rate.Limit // commands per second per session
	CommandBurst int
}

// Handler upgrades websocket sessions and dispatches their commands.
type Handler struct {
	svc      RaidService
	board    *Board
	cfg      HandlerConfig
	log      *logrus.Entry
	upgrader websocket.Upgrader
}

func NewHandler(svc RaidService, board *Board, cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.CommandRate <= 0 {
		cfg.CommandRate = 2
	}
	if cfg.CommandBurst <= 0 {
		cfg.CommandBurst = 5
	}
	return &Handler{
		svc:   svc,
		board: board,
		cfg:   cfg,
		log:   cfg.Logger.WithField("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *nethttp.Request) bool {
				return true
			},
		},
	}
}

// Handle upgrades the connection and runs the session read loop until the
// peer goes away.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	uid := r.URL.Query().Get("id")
	if uid == "" {
		nethttp.Error(w, "missing id", nethttp.StatusBadRequest)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = uid
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).WithField("user", uid).Warn("upgrade failed")
		return
	}

	session := newSession(uid, name, conn, h.cfg.CommandRate, h.cfg.CommandBurst)
	h.board.attach(session)
	defer func() {
		h.board.detach(session)
		session.Close()
	}()

	// Initial board state so the client can render immediately.
	if err := session.WriteJSON(proto.NewResult(proto.ClientCommand{Type: proto.CmdStatus}, true, "", h.svc.Snapshot())); err != nil {
		return
	}

	ctx := r.Context()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd proto.ClientCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			h.log.WithError(err).WithField("user", uid).Debug("discarding malformed frame")
			continue
		}

		if !session.Allow() {
			if err := session.WriteJSON(proto.NewResult(cmd, false, "slow down", nil)); err != nil {
				return
			}
			continue
		}

		if !h.dispatch(ctx, session, cmd) {
			return
		}
	}
}

// dispatch runs one command and writes its result. Returns false when the
// session write path is gone.
func (h *Handler) dispatch(ctx context.Context, session *Session, cmd proto.ClientCommand) bool {
	reply := func(ok bool, detail string, data any) bool {
		return session.WriteJSON(proto.NewResult(cmd, ok, detail, data)) == nil
	}

	if err := cmd.Validate(); err != nil {
		return reply(false, err.Error(), nil)
	}
	if proto.IsAdmin(cmd.Type) && !h.authorized(cmd.Token) {
		return reply(false, "admin token required", nil)
	}

	switch cmd.Type {
	case proto.CmdAttack:
		res, err := h.svc.Attack(ctx, session.UID, session.Name)
		if err != nil {
			h.log.WithError(err).WithField("user", session.UID).Error("attack failed")
			return reply(false, "attack failed, try again", nil)
		}
		return reply(res.Outcome == raid.OutcomeHit, res.Detail, res)

	case proto.CmdStatus:
		return reply(true, "", h.svc.Snapshot())

	case proto.CmdParticipants:
		return reply(true, "", h.svc.Participants(cmd.MinDamage))

	case proto.CmdClaimDaily:
		res, err := h.svc.ClaimDaily(session.UID)
		if err != nil {
			return h.replyInternal(session, cmd, err)
		}
		return reply(res.OK, res.Detail, res)

	case proto.CmdBuyEnergy:
		res, err := h.svc.BuyEnergy(session.UID, cmd.Amount)
		if err != nil {
			return h.replyInternal(session, cmd, err)
		}
		return reply(res.OK, res.Detail, res)

	case proto.CmdEnergyStatus:
		res, err := h.svc.EnergyStatusFor(session.UID)
		if err != nil {
			return h.replyInternal(session, cmd, err)
		}
		return reply(true, "", res)

	case proto.CmdSpawn:
		b, err := h.svc.Spawn(ctx, raid.SpawnParams{HP: cmd.HP, Name: cmd.Name, Weakness: cmd.Weakness, Tier: cmd.Tier})
		return h.adminReply(session, cmd, b, err)

	case proto.CmdUsePreset:
		b, err := h.svc.UsePreset(ctx, cmd.Key, cmd.HP)
		return h.adminReply(session, cmd, b, err)

	case proto.CmdSetHP:
		b, err := h.svc.SetHP(ctx, cmd.HP)
		return h.adminReply(session, cmd, b, err)

	case proto.CmdSetWeakness:
		b, err := h.svc.SetWeakness(ctx, cmd.Weakness)
		return h.adminReply(session, cmd, b, err)

	case proto.CmdAddShield:
		b, err := h.svc.AddShield(ctx, cmd.Kind, cmd.Pct)
		return h.adminReply(session, cmd, b, err)

	case proto.CmdClearShield:
		b, err := h.svc.ClearShield(ctx)
		return h.adminReply(session, cmd, b, err)

	case proto.CmdWipe:
		b, err := h.svc.Wipe(ctx)
		return h.adminReply(session, cmd, b, err)

	case proto.CmdRotateNow:
		b, err := h.svc.RotateNow(ctx)
		return h.adminReply(session, cmd, b, err)

	case proto.CmdRotateConfig:
		b, err := h.svc.SetRotate(ctx, cmd.Enabled, cmd.Minutes)
		return h.adminReply(session, cmd, b, err)

	case proto.CmdReloadCatalog:
		if h.cfg.Catalog == nil {
			return reply(false, "catalog reload unavailable", nil)
		}
		if err := h.cfg.Catalog.ReloadCatalog(); err != nil {
			return reply(false, err.Error(), nil)
		}
		return reply(true, "catalog reloaded", nil)
	}
	return reply(false, "unknown command", nil)
}

func (h *Handler) adminReply(session *Session, cmd proto.ClientCommand, b raid.BossState, err error) bool {
	if err != nil {
		return session.WriteJSON(proto.NewResult(cmd, false, err.Error(), nil)) == nil
	}
	return session.WriteJSON(proto.NewResult(cmd, true, "", b)) == nil
}

func (h *Handler) replyInternal(session *Session, cmd proto.ClientCommand, err error) bool {
	h.log.WithError(err).WithField("user", session.UID).Error("command failed")
	return session.WriteJSON(proto.NewResult(cmd, false, "internal error, try again", nil)) == nil
}

func (h *Handler) authorized(token string) bool {
	if h.cfg.AdminToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.AdminToken)) == 1
}
