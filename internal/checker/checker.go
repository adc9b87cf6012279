// Package checker runs the connectivity checks offered by the HTTP service,
// the CLI and the monitor: server ping, join, and peer-to-peer reachability.
package checker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/smash64-online/netcheck/internal/config"
	"github.com/smash64-online/netcheck/internal/events"
	"github.com/smash64-online/netcheck/internal/kaillera"
	"github.com/smash64-online/netcheck/internal/p2p"
	"github.com/smash64-online/netcheck/internal/protocol"
	"github.com/smash64-online/netcheck/internal/util"
)

// Result messages shared by several checks.
const (
	MsgInvalidParameters = "Invalid parameters"
	MsgUnableToConnect   = "Unable to connect"
	MsgConnected         = "Connection successful"
	MsgOK                = "OK"
)

// SelfHost asks a p2p check to target the caller's own address.
const SelfHost = "self"

// ErrInvalidRequest is returned for a request that cannot be checked.
var ErrInvalidRequest = errors.New("invalid check request")

// Request identifies the target of a check.
type Request struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// Via names the front end that asked for the check.
	Via string `json:"via,omitempty"`

	// From is the caller's address, used for "self" p2p checks.
	From string `json:"-"`
}

// Result is the outcome of a check. Status is 200 when the check ran and
// 400 when the request was malformed or the target could not be opened.
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
	Status  int                    `json:"-"`
}

func ran(success bool, message string, meta map[string]interface{}) Result {
	return Result{Success: success, Message: message, Meta: meta, Status: http.StatusOK}
}

func rejected(message string, meta map[string]interface{}) Result {
	return Result{Success: false, Message: message, Meta: meta, Status: http.StatusBadRequest}
}

// Checker runs checks with a fixed identity. It is safe for concurrent
// use; every check opens its own client.
type Checker struct {
	cfg    config.CheckerConfig
	conn   kaillera.ConnType
	bus    *events.EventBus
	logger zerolog.Logger
}

// New creates a Checker. bus may be nil.
func New(cfg config.CheckerConfig, bus *events.EventBus) (*Checker, error) {
	conn, err := kaillera.ParseConnType(cfg.ConnectionType)
	if err != nil {
		return nil, fmt.Errorf("failed to create checker: %w", err)
	}
	return &Checker{
		cfg:    cfg,
		conn:   conn,
		bus:    bus,
		logger: util.ComponentLogger("checker"),
	}, nil
}

// Run dispatches req to the check named by kind.
func (c *Checker) Run(ctx context.Context, kind events.CheckKind, req Request) Result {
	switch kind {
	case events.CheckServer:
		return c.ServerCheck(ctx, req)
	case events.CheckConnection:
		return c.ConnectionCheck(ctx, req)
	case events.CheckJoin:
		return c.JoinCheck(ctx, req)
	case events.CheckP2P:
		return c.P2PCheck(ctx, req)
	}
	return rejected(MsgInvalidParameters, nil)
}

func (c *Checker) serverOptions() kaillera.Options {
	return kaillera.Options{
		Timeout:         c.cfg.Timeout(),
		Retries:         c.cfg.Retries,
		MaxJoinAttempts: c.cfg.MaxJoinAttempts,
	}
}

func (c *Checker) pingCount() int {
	if c.cfg.PingCount < 1 {
		return 1
	}
	return c.cfg.PingCount
}

// ServerCheck pings a lobby server and reports the average latency.
func (c *Checker) ServerCheck(ctx context.Context, req Request) Result {
	return c.track(events.CheckServer, req, func() Result {
		stats, res, ok := c.ping(ctx, req)
		if !ok {
			return res
		}
		return ran(true, fmt.Sprintf("%dms", stats.AverageMS), map[string]interface{}{
			"latency_ms": stats.AverageMS,
			"drops":      stats.Drops,
		})
	})
}

// ConnectionCheck pings a lobby server and only reports reachability.
func (c *Checker) ConnectionCheck(ctx context.Context, req Request) Result {
	return c.track(events.CheckConnection, req, func() Result {
		_, res, ok := c.ping(ctx, req)
		if !ok {
			return res
		}
		return ran(true, MsgConnected, nil)
	})
}

func (c *Checker) ping(ctx context.Context, req Request) (kaillera.PingStats, Result, bool) {
	if err := validateTarget(req.Host, req.Port); err != nil {
		return kaillera.PingStats{}, rejected(MsgInvalidParameters, nil), false
	}

	client, err := kaillera.NewClient(ctx, req.Host, req.Port, c.serverOptions())
	if err != nil {
		c.logger.Debug().Err(err).Str("host", req.Host).Msg("failed to open server socket")
		return kaillera.PingStats{}, rejected(MsgUnableToConnect, nil), false
	}
	defer client.Close()

	stats, err := client.Ping(c.pingCount())
	if err != nil {
		c.logger.Debug().Err(err).Str("host", req.Host).Int("port", req.Port).Msg("ping failed")
		return stats, ran(false, MsgUnableToConnect, nil), false
	}
	return stats, Result{}, true
}

// JoinCheck joins a lobby server as the bot, says hello in the global
// chat and leaves again.
func (c *Checker) JoinCheck(ctx context.Context, req Request) Result {
	return c.track(events.CheckJoin, req, func() Result {
		if err := validateTarget(req.Host, req.Port); err != nil {
			return rejected(MsgInvalidParameters, nil)
		}

		client, err := kaillera.NewClient(ctx, req.Host, req.Port, c.serverOptions())
		if err != nil {
			return rejected(MsgUnableToConnect, nil)
		}
		defer client.Close()

		joined, err := client.Connect(ctx, c.cfg.Username, c.cfg.ServerClientName, c.conn)
		if err != nil {
			return ran(false, joinFailureMessage(err), nil)
		}

		meta := map[string]interface{}{
			"user_port": client.UserPort(),
		}
		if notices := joined.Filter(uint8(kaillera.ServerNotice)); len(notices) > 0 {
			meta["notices"] = len(notices)
		}

		if _, err := client.Chat(fmt.Sprintf("%s connectivity check", c.cfg.Username)); err != nil {
			c.logger.Debug().Err(err).Msg("chat after join failed")
		}
		if _, err := client.Disconnect("check complete"); err != nil {
			c.logger.Debug().Err(err).Msg("disconnect after join failed")
		}

		return ran(true, MsgOK, meta)
	})
}

func joinFailureMessage(err error) string {
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		return MsgUnableToConnect
	}
	switch perr.Kind {
	case protocol.KindServerFull:
		return "Server is full"
	case protocol.KindNoHello:
		return "Server answers ping but not hello"
	case protocol.KindServerReject:
		return fmt.Sprintf("Rejected: %s", perr.Reason)
	case protocol.KindJoinExhausted:
		return "Server never confirmed the join"
	}
	return MsgUnableToConnect
}

// P2PCheck connects to a player's peer-to-peer host, greets them with the
// bot message and disconnects. Host "self" targets the caller's address
// and a zero port uses the default p2p port.
func (c *Checker) P2PCheck(ctx context.Context, req Request) Result {
	from := req.From
	if from == "" {
		from = "unknown"
	}
	via := req.Via
	if via == "" {
		via = "unknown"
	}

	host := req.Host
	if host == SelfHost {
		host = req.From
	}
	port := req.Port
	if port == 0 {
		port = c.cfg.DefaultP2PPort
	}
	req.Host, req.Port = host, port

	return c.track(events.CheckP2P, req, func() Result {
		if err := validateTarget(host, port); err != nil {
			return rejected(MsgInvalidParameters, nil)
		}
		meta := map[string]interface{}{"host": host, "port": port}

		client, err := p2p.NewClient(ctx, host, port, p2p.Options{
			Timeout: c.cfg.Timeout(),
			Retries: c.cfg.Retries,
		})
		if err != nil {
			return rejected(MsgUnableToConnect, meta)
		}
		defer client.Close()

		ok, joined, err := client.Connect(c.cfg.Username, c.cfg.P2PClientName)
		if err != nil || !ok {
			if err != nil {
				c.logger.Debug().Err(err).Str("host", host).Msg("peer connect failed")
			}
			return ran(false, MsgUnableToConnect, meta)
		}

		user, game, _ := p2p.HostInfo(joined)
		meta["user"] = user
		meta["game"] = game

		for i, line := range BotMessage(user, host, port, from, via) {
			if _, err := client.Chat(line, p2p.DefaultChatFrame, i == 0); err != nil {
				c.logger.Debug().Err(err).Int("line", i).Msg("peer chat failed")
				return ran(false, MsgUnableToConnect, meta)
			}
		}
		if err := client.Disconnect(); err != nil {
			c.logger.Debug().Err(err).Msg("peer disconnect failed")
		}

		return ran(true, MsgOK, meta)
	})
}

// BotMessage returns the chat lines sent to a player whose p2p host
// answered the check.
func BotMessage(user, host string, port int, from, via string) []string {
	return []string{
		"\n",
		fmt.Sprintf("Hey %s! Your P2P is WORKING CORRECTLY!", user),
		fmt.Sprintf("Just share '%s:%d' with your opponent to play.\n", host, port),
		"Remember to only share your IP with people you trust.",
		fmt.Sprintf("This bot request came from %s via %s.", from, via),
		"If you did not ask for this check, please report it in Discord.\n",
		"ggs",
	}
}

func validateTarget(host string, port int) error {
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidRequest)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidRequest, port)
	}
	return nil
}

// track emits the start and completion events around run.
func (c *Checker) track(kind events.CheckKind, req Request, run func() Result) Result {
	ctx := context.Background()
	if c.bus != nil {
		c.bus.Emit(ctx, events.NewEvent(events.EventCheckStarted, "checker", events.CheckStartedPayload{
			Kind: kind,
			Host: req.Host,
			Port: req.Port,
		}))
	}

	start := time.Now()
	result := run()
	elapsed := time.Since(start)

	c.logger.Info().
		Str("kind", kind.String()).
		Str("host", req.Host).
		Int("port", req.Port).
		Bool("success", result.Success).
		Str("message", result.Message).
		Dur("elapsed", elapsed).
		Msg("check complete")

	if c.bus != nil {
		c.bus.Emit(ctx, events.NewEvent(events.EventCheckCompleted, "checker", events.CheckCompletedPayload{
			Kind:     kind,
			Host:     req.Host,
			Port:     req.Port,
			Success:  result.Success,
			Message:  result.Message,
			Meta:     result.Meta,
			Duration: elapsed,
		}))
	}
	return result
}
