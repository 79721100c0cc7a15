package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ammarb/internal/domain"
	"github.com/alanyoungcy/ammarb/internal/service"
)

const maxIntentSize = 64 << 10

// IntentChecker turns a swap intent into a signed back-run transaction.
type IntentChecker interface {
	CheckArbitrage(ctx context.Context, intent domain.SwapIntent) (*service.IntentResult, error)
}

// IntentServerConfig configures an IntentServer.
type IntentServerConfig struct {
	Checker        IntentChecker
	Timeout        time.Duration // per intent, default 15s
	AllowedOrigins []string
	Logger         *slog.Logger
}

// IntentServer accepts swap intents over websocket. Each connection is
// served by a single goroutine, so one intent is answered before the next
// frame is read.
type IntentServer struct {
	checker  IntentChecker
	timeout  time.Duration
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

// NewIntentServer creates an IntentServer.
func NewIntentServer(cfg IntentServerConfig) *IntentServer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IntentServer{
		checker: cfg.Checker,
		timeout: cfg.Timeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		},
		logger: logger.With(slog.String("component", "intent_ingest")),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// intentMsg is the wire form of a swap intent.
type intentMsg struct {
	ID        string    `json:"id"`
	TokenIn   string    `json:"tokenIn"`
	AmountIn  bigAmount `json:"amountIn"`
	TokenOut  string    `json:"tokenOut"`
	AmountOut bigAmount `json:"amountOut"`
	Market    string    `json:"market"`
	Slippage  bigAmount `json:"slippage"`
}

// intentReply answers one intent.
type intentReply struct {
	ID            string `json:"id"`
	OK            bool   `json:"ok"`
	Tx            string `json:"tx,omitempty"`
	TxHash        string `json:"txHash,omitempty"`
	OpportunityID string `json:"opportunityId,omitempty"`
	ProfitETH     string `json:"profitEth,omitempty"`
	Error         string `json:"error,omitempty"`
}

// HandleIntents upgrades an ingestion connection and serves it until the
// peer goes away.
// GET /ws/intents
func (s *IntentServer) HandleIntents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}
	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	defer s.untrack(conn)

	conn.SetReadLimit(maxIntentSize)
	logger := s.logger.With(slog.String("remote", conn.RemoteAddr().String()))
	logger.Info("ingestion client connected")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("ingestion read failed", slog.String("error", err.Error()))
			}
			logger.Info("ingestion client disconnected")
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		reply := s.process(r.Context(), data, logger)
		payload, err := json.Marshal(reply)
		if err != nil {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.Warn("ingestion write failed", slog.String("error", err.Error()))
			return
		}
	}
}

// process decodes and checks one intent.
func (s *IntentServer) process(parent context.Context, data []byte, logger *slog.Logger) intentReply {
	intent, err := decodeIntent(data)
	if err != nil {
		logger.Warn("invalid intent", slog.String("error", err.Error()))
		return intentReply{ID: intent.ID, Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.timeout)
	defer cancel()

	start := time.Now()
	res, err := s.checker.CheckArbitrage(ctx, intent)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, domain.ErrNoArbitrage) {
			level = slog.LevelDebug
		}
		logger.Log(ctx, level, "intent rejected",
			slog.String("intent_id", intent.ID),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return intentReply{ID: intent.ID, Error: err.Error()}
	}

	reply := intentReply{
		ID:            intent.ID,
		OK:            true,
		OpportunityID: res.OpportunityID,
		ProfitETH:     domain.FormatEther(res.Opportunity.Profit),
	}
	if res.Tx != nil {
		reply.Tx = hexutil.Encode(res.Tx.Raw)
		if res.Tx.Tx != nil {
			reply.TxHash = res.Tx.Tx.Hash().Hex()
		}
	}
	logger.Info("intent answered",
		slog.String("intent_id", intent.ID),
		slog.String("opp_id", res.OpportunityID),
		slog.Duration("elapsed", time.Since(start)),
	)
	return reply
}

// decodeIntent parses and validates a wire intent. The returned intent
// carries the ID even on error so the reply can be correlated.
func decodeIntent(data []byte) (domain.SwapIntent, error) {
	var msg intentMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		var partial struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(data, &partial)
		return domain.SwapIntent{ID: partial.ID}, fmt.Errorf("invalid intent: %w", err)
	}
	intent := domain.SwapIntent{ID: msg.ID}

	addrs := []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"tokenIn", msg.TokenIn, &intent.TokenIn},
		{"tokenOut", msg.TokenOut, &intent.TokenOut},
		{"market", msg.Market, &intent.Market},
	}
	for _, a := range addrs {
		if !common.IsHexAddress(a.value) {
			return intent, fmt.Errorf("invalid intent: %s %q is not an address", a.name, a.value)
		}
		*a.dst = common.HexToAddress(a.value)
	}

	if msg.AmountIn.Int == nil || msg.AmountIn.Sign() <= 0 {
		return intent, errors.New("invalid intent: amountIn must be positive")
	}
	if msg.AmountOut.Int == nil || msg.AmountOut.Sign() < 0 {
		return intent, errors.New("invalid intent: amountOut must be non-negative")
	}
	intent.AmountIn = msg.AmountIn.Int
	intent.AmountOut = msg.AmountOut.Int

	if msg.Slippage.Int != nil {
		bps := msg.Slippage.Int
		if bps.Sign() < 0 || bps.Cmp(big.NewInt(10_000)) > 0 {
			return intent, fmt.Errorf("invalid intent: slippage %s outside 0..10000 bps", bps)
		}
		intent.SlippageBps = bps.Int64()
	}
	return intent, nil
}

func (s *IntentServer) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *IntentServer) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

// Close drops every open ingestion connection. http.Server.Shutdown does
// not reach hijacked connections.
func (s *IntentServer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for conn := range s.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

// bigAmount accepts an integer as a JSON number, a decimal or 0x string,
// or an object with a "hex" field.
type bigAmount struct {
	*big.Int
}

func (a *bigAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var text string
	switch {
	case len(data) > 0 && data[0] == '"':
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
	case len(data) > 0 && data[0] == '{':
		var obj struct {
			Hex string `json:"hex"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		text = obj.Hex
	default:
		text = string(data)
	}

	v, err := parseInteger(strings.TrimSpace(text))
	if err != nil {
		return err
	}
	a.Int = v
	return nil
}

func parseInteger(s string) (*big.Int, error) {
	if s == "" {
		return nil, errors.New("empty amount")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return nil, fmt.Errorf("invalid hex amount %q", s)
		}
		return v, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("amount %q is not an integer", s)
	}
	return d.BigInt(), nil
}
