// Package engine owns the authoritative stonk price: it buffers classified
// chat signals, resolves them into price ticks on a fixed schedule, persists
// each tick, and pushes state changes to subscribers through the hub.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aithusa712/TwitchStonks/internal/hub"
	"github.com/Aithusa712/TwitchStonks/internal/metrics"
	"github.com/Aithusa712/TwitchStonks/internal/signal"
	"github.com/Aithusa712/TwitchStonks/internal/store"
)

// Config carries the tunables the engine needs at construction.
type Config struct {
	Channel      string
	UpKeyword    string
	DownKeyword  string
	TickInterval time.Duration
	InitialPrice float64
	UnitStep     float64
}

// DefaultUnitStep is the price movement per net signal.
const DefaultUnitStep = 0.5

// Engine is the single authoritative owner of price state. The tick loop is
// the only writer of price and persisted records; chat handling only ever
// increments the pending counters.
type Engine struct {
	log        zerolog.Logger
	repo       store.TickRepository
	hub        *hub.Hub
	classifier signal.Classifier
	cfg        Config

	mu            sync.Mutex
	price         float64
	upCount       int64
	downCount     int64
	nextTickAt    time.Time
	chatConnected bool
	streamLive    bool
	running       bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// New wires the engine to its collaborators. Start must be called before the
// engine does anything.
func New(log zerolog.Logger, repo store.TickRepository, h *hub.Hub, cfg Config) *Engine {
	if cfg.UnitStep <= 0 {
		cfg.UnitStep = DefaultUnitStep
	}
	return &Engine{
		log:        log,
		repo:       repo,
		hub:        h,
		classifier: signal.NewClassifier(cfg.UpKeyword, cfg.DownKeyword),
		cfg:        cfg,
		price:      cfg.InitialPrice,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start recovers the price from persisted history and launches the tick
// loop. Calling Start on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	// The persisted price on the latest record is not trusted as the resume
	// point; replaying every recorded count tolerates ticks whose write was
	// lost after the in-memory price had already moved.
	up, down, err := e.repo.SumCounts(ctx)
	if err != nil {
		return err
	}
	recovered := clamp(e.cfg.InitialPrice + float64(up-down)*e.cfg.UnitStep)

	loopCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		cancel()
		return nil
	}
	e.price = recovered
	e.nextTickAt = e.now().Add(e.cfg.TickInterval)
	e.running = true
	e.cancel = cancel
	e.mu.Unlock()

	metrics.CurrentPrice.Set(recovered)
	e.log.Info().Float64("price", recovered).Int64("up", up).Int64("down", down).Msg("recovered price from history")

	e.wg.Add(1)
	go e.run(loopCtx)
	return nil
}

// Stop cancels the tick loop, waits for any in-flight tick, and closes every
// subscriber.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
	e.hub.Stop()
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick resolves the buffered counters into at most one price update. It runs
// strictly sequentially on the loop goroutine and never overlaps itself. Any
// failure is logged and swallowed; that interval's counts are lost and the
// loop carries on.
func (e *Engine) tick(ctx context.Context) {
	now := e.now()

	e.mu.Lock()
	up, down := e.upCount, e.downCount
	e.upCount, e.downCount = 0, 0
	e.nextTickAt = now.Add(e.cfg.TickInterval)
	if up == down {
		// Zero net activity leaves no record: absence in storage is how an
		// interval that moved nothing is represented. Balanced-but-busy
		// intervals still get a counter reset so viewer UIs clear.
		nextTickAt := e.nextTickAt
		e.mu.Unlock()
		if up != 0 {
			e.send(LiveCountsMessage{
				Type:       messageTypeLiveCounts,
				NextTickAt: nextTickAt,
			})
		}
		return
	}
	delta := float64(up-down) * e.cfg.UnitStep
	e.price = clamp(e.price + delta)
	tick := signal.Tick{Timestamp: now, Price: e.price, UpCount: up, DownCount: down}
	nextTickAt := e.nextTickAt
	chatConnected, streamLive := e.chatConnected, e.streamLive
	e.mu.Unlock()

	metrics.CurrentPrice.Set(tick.Price)

	if err := e.repo.Insert(ctx, tick); err != nil {
		metrics.TickErrorsTotal.Inc()
		e.log.Error().Err(err).Int64("up", up).Int64("down", down).Msg("tick persist failed, counts lost")
		return
	}
	metrics.TicksTotal.Inc()

	e.send(TickMessage{
		Type:            messageTypeTick,
		Timestamp:       tick.Timestamp,
		Price:           tick.Price,
		UpCount:         tick.UpCount,
		DownCount:       tick.DownCount,
		NextTickAt:      nextTickAt,
		TwitchConnected: chatConnected,
		StreamLive:      streamLive,
	})
	// Clear pending-activity indicators on subscriber UIs.
	e.send(LiveCountsMessage{
		Type:       messageTypeLiveCounts,
		UpCount:    0,
		DownCount:  0,
		NextTickAt: nextTickAt,
	})
}

// HandleMessage classifies one chat line and buffers any matching signals. A
// line may count as both up and down. Each increment pushes a best-effort
// live-counters snapshot so viewers see pending activity between ticks.
func (e *Engine) HandleMessage(text string) {
	metrics.ChatMessagesTotal.Inc()
	directions := e.classifier.Classify(text)
	if len(directions) == 0 {
		return
	}

	e.mu.Lock()
	for _, dir := range directions {
		if dir == signal.Up {
			e.upCount++
		} else {
			e.downCount++
		}
	}
	up, down := e.upCount, e.downCount
	nextTickAt := e.nextTickAt
	e.mu.Unlock()

	for _, dir := range directions {
		metrics.SignalsTotal.WithLabelValues(dir.String()).Inc()
	}

	e.send(LiveCountsMessage{
		Type:       messageTypeLiveCounts,
		UpCount:    up,
		DownCount:  down,
		NextTickAt: nextTickAt,
	})
}

// SetChatConnected records the chat-feed connectivity flag, broadcasting a
// status update only on an actual change.
func (e *Engine) SetChatConnected(connected bool) {
	e.setStatus(&e.chatConnected, connected)
}

// SetStreamLive records the stream liveness flag, broadcasting a status
// update only on an actual change.
func (e *Engine) SetStreamLive(live bool) {
	e.setStatus(&e.streamLive, live)
}

// setStatus dedupes flag writes so a noisy poller cannot cause broadcast
// storms. The field pointer is only dereferenced under the engine mutex.
func (e *Engine) setStatus(field *bool, value bool) {
	e.mu.Lock()
	if *field == value {
		e.mu.Unlock()
		return
	}
	*field = value
	chatConnected, streamLive := e.chatConnected, e.streamLive
	nextTickAt := e.nextTickAt
	e.mu.Unlock()

	e.send(StatusMessage{
		Type:            messageTypeStatus,
		TwitchConnected: chatConnected,
		StreamLive:      streamLive,
		NextTickAt:      nextTickAt,
	})
}

// Snapshot reports the current engine state for the status endpoint.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Channel:             e.cfg.Channel,
		CurrentPrice:        e.price,
		TwitchConnected:     e.chatConnected,
		StreamLive:          e.streamLive,
		NextTickAt:          e.nextTickAt,
		TickIntervalMinutes: e.cfg.TickInterval.Minutes(),
		UpKeyword:           e.cfg.UpKeyword,
		DownKeyword:         e.cfg.DownKeyword,
	}
}

// RegisterSubscriber attaches a websocket connection to the hub with its two
// welcome messages queued ahead of any later broadcast: first the full state
// snapshot, then the pending live counters. A subscriber is never shown a
// counters-only message before it has a baseline price.
func (e *Engine) RegisterSubscriber(ctx context.Context, conn hub.Conn) {
	latest, err := e.repo.Latest(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("latest tick lookup failed, sending zero counts in snapshot")
	}

	e.mu.Lock()
	price := e.price
	nextTickAt := e.nextTickAt
	chatConnected, streamLive := e.chatConnected, e.streamLive
	up, down := e.upCount, e.downCount
	e.mu.Unlock()

	snapshot := TickMessage{
		Type:            messageTypeTick,
		Timestamp:       e.now(),
		Price:           price,
		NextTickAt:      nextTickAt,
		TwitchConnected: chatConnected,
		StreamLive:      streamLive,
	}
	if latest != nil {
		snapshot.Timestamp = latest.Timestamp
		snapshot.UpCount = latest.UpCount
		snapshot.DownCount = latest.DownCount
	}
	counts := LiveCountsMessage{
		Type:       messageTypeLiveCounts,
		UpCount:    up,
		DownCount:  down,
		NextTickAt: nextTickAt,
	}

	e.hub.Register(conn, encode(e.log, snapshot), encode(e.log, counts))
}

func (e *Engine) send(payload interface{}) {
	e.hub.Broadcast(encode(e.log, payload))
}

func clamp(price float64) float64 {
	if price < 0 {
		return 0
	}
	return price
}
