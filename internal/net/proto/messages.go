package proto

import (
	"fmt"
	"time"

	"hollowgrove/bot/internal/raid"
)

// ProtocolVersion is stamped on every frame both directions.
const ProtocolVersion = 1

// Command types a client may send. Admin types require a token.
const (
	CmdAttack        = "attack"
	CmdStatus        = "status"
	CmdParticipants  = "participants"
	CmdClaimDaily    = "claim_daily"
	CmdBuyEnergy     = "buy_energy"
	CmdEnergyStatus  = "energy_status"
	CmdSpawn         = "spawn"
	CmdUsePreset     = "use_preset"
	CmdSetHP         = "set_hp"
	CmdSetWeakness   = "set_weakness"
	CmdAddShield     = "add_shield"
	CmdClearShield   = "clear_shield"
	CmdWipe          = "wipe"
	CmdRotateNow     = "rotate_now"
	CmdRotateConfig  = "rotate_config"
	CmdReloadCatalog = "reload_catalog"
)

// ClientCommand is one inbound frame. Fields beyond Type are read only by
// the commands that need them.
type ClientCommand struct {
	Ver  int    `json:"ver,omitempty"`
	Seq  uint64 `json:"seq,omitempty"`
	Type string `json:"type"`

	Amount    int    `json:"amount,omitempty"`     // buy_energy
	MinDamage int    `json:"min_damage,omitempty"` // participants
	Token     string `json:"token,omitempty"`      // admin commands

	HP       int     `json:"hp,omitempty"`
	Name     string  `json:"name,omitempty"`
	Weakness string  `json:"weakness,omitempty"`
	Tier     string  `json:"tier,omitempty"`
	Key      string  `json:"key,omitempty"`
	Kind     string  `json:"kind,omitempty"`
	Pct      float64 `json:"pct,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
	Minutes  *int    `json:"minutes,omitempty"`
}

// adminCommands gates which types require the admin token.
var adminCommands = map[string]bool{
	CmdSpawn:         true,
	CmdUsePreset:     true,
	CmdSetHP:         true,
	CmdSetWeakness:   true,
	CmdAddShield:     true,
	CmdClearShield:   true,
	CmdWipe:          true,
	CmdRotateNow:     true,
	CmdRotateConfig:  true,
	CmdReloadCatalog: true,
}

// IsAdmin reports whether the command type requires the admin token.
func IsAdmin(cmdType string) bool { return adminCommands[cmdType] }

// Validate rejects frames the dispatcher should never see.
func (c ClientCommand) Validate() error {
	switch c.Type {
	case CmdAttack, CmdStatus, CmdParticipants, CmdClaimDaily, CmdEnergyStatus,
		CmdClearShield, CmdWipe, CmdRotateNow, CmdReloadCatalog, CmdSpawn:
	case CmdBuyEnergy:
		if c.Amount <= 0 {
			return fmt.Errorf("buy_energy needs a positive amount")
		}
	case CmdUsePreset:
		if c.Key == "" {
			return fmt.Errorf("use_preset needs a key")
		}
	case CmdSetHP:
		if c.HP < 0 {
			return fmt.Errorf("set_hp needs a non-negative hp")
		}
	case CmdSetWeakness:
		if c.Weakness == "" {
			return fmt.Errorf("set_weakness needs a faction")
		}
	case CmdAddShield:
		if c.Kind == "" {
			return fmt.Errorf("add_shield needs a kind")
		}
	case CmdRotateConfig:
		if c.Enabled == nil && c.Minutes == nil {
			return fmt.Errorf("rotate_config needs enabled or minutes")
		}
	default:
		return fmt.Errorf("unknown command %q", c.Type)
	}
	return nil
}

// Result is the reply to one client command.
type Result struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"` // always "result"
	Seq    uint64 `json:"seq,omitempty"`
	Cmd    string `json:"cmd"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// NewResult stamps the protocol fields onto a reply.
func NewResult(cmd ClientCommand, ok bool, detail string, data any) Result {
	return Result{
		Ver:    ProtocolVersion,
		Type:   "result",
		Seq:    cmd.Seq,
		Cmd:    cmd.Type,
		OK:     ok,
		Detail: detail,
		Data:   data,
	}
}

// BoardMessage is a server-pushed announcement broadcast to every session.
type BoardMessage struct {
	Ver     int       `json:"ver"`
	Type    string    `json:"type"` // always "board"
	Event   string    `json:"event"`
	Time    time.Time `json:"time"`
	Boss    string    `json:"boss,omitempty"`
	Message string    `json:"message"`
	Payload any       `json:"payload,omitempty"`
}

// BoardFromEvent converts an engine event into its wire shape.
func BoardFromEvent(ev raid.Event) BoardMessage {
	return BoardMessage{
		Ver:     ProtocolVersion,
		Type:    "board",
		Event:   string(ev.Type),
		Time:    ev.Time,
		Boss:    ev.Boss,
		Message: ev.Message,
		Payload: ev.Payload,
	}
}
