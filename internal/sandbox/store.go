// Package sandbox is a local stand-in for the ad and pixel endpoints. It
// records what a client sends into Redis so staging environments can check
// their integration without talking to the real service.
package sandbox

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/avct/uasurfer"
	"github.com/google/uuid"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	recentKey   = "sandbox:recent"
	latencyKey  = "sandbox:pixel:latency"
	recentLimit = 100
	latencyKeep = 1000
)

// Store persists sandbox beacons in Redis.
type Store struct {
	Client *redis.Client
	TTL    time.Duration
	now    func() time.Time
}

// NewStore wraps an existing client.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{Client: client, TTL: ttl, now: time.Now}
}

// InitRedis connects to addr and returns a Store.
func InitRedis(ctx context.Context, addr string, ttl time.Duration) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return NewStore(client, ttl), nil
}

// Close shuts down the Redis client.
func (s *Store) Close() {
	if s != nil && s.Client != nil {
		if err := s.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}

func (s *Store) day() string {
	return s.now().UTC().Format("2006-01-02")
}

// incrDaily increments key and applies a 48h TTL on first set.
func (s *Store) incrDaily(ctx context.Context, key string) error {
	val, err := s.Client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if val == 1 {
		s.Client.Expire(ctx, key, 48*time.Hour)
	}
	return nil
}

// DeviceType classifies a user agent as desktop, mobile, tablet, bot or other.
func DeviceType(userAgent string) string {
	ua := uasurfer.Parse(userAgent)
	if ua.IsBot() {
		return "bot"
	}
	switch ua.DeviceType {
	case uasurfer.DeviceComputer:
		return "desktop"
	case uasurfer.DevicePhone:
		return "mobile"
	case uasurfer.DeviceTablet:
		return "tablet"
	default:
		return "other"
	}
}

// RecordRequest stores a received ad/analytics form and returns its record id.
func (s *Store) RecordRequest(ctx context.Context, form url.Values) (string, error) {
	id := uuid.NewString()
	day := s.day()

	fields := make(map[string]any, len(form)+1)
	for k := range form {
		fields[k] = form.Get(k)
	}
	fields["device"] = DeviceType(form.Get("u"))

	recordKey := "sandbox:request:" + id
	pipe := s.Client.TxPipeline()
	pipe.HSet(ctx, recordKey, fields)
	pipe.Expire(ctx, recordKey, s.TTL)
	pipe.LPush(ctx, recentKey, id)
	pipe.LTrim(ctx, recentKey, 0, recentLimit-1)
	if z := form.Get("z"); z != "" {
		pipe.Set(ctx, "sandbox:z:"+z, id, s.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store request: %w", err)
	}

	if err := s.incrDaily(ctx, fmt.Sprintf("sandbox:requests:%s:%s", form.Get("rt"), day)); err != nil {
		return "", fmt.Errorf("count request: %w", err)
	}
	if err := s.incrDaily(ctx, fmt.Sprintf("sandbox:device:%s:%s", fields["device"], day)); err != nil {
		return "", fmt.Errorf("count device: %w", err)
	}
	return id, nil
}

// RecordPixel stores a pixel hit and attaches its latency to the request that
// carried the same z token, when that request is still known.
func (s *Store) RecordPixel(ctx context.Context, query url.Values) error {
	if err := s.incrDaily(ctx, "sandbox:pixels:"+s.day()); err != nil {
		return fmt.Errorf("count pixel: %w", err)
	}

	lt := query.Get("lt")
	if _, err := strconv.ParseFloat(lt, 64); err == nil {
		pipe := s.Client.TxPipeline()
		pipe.LPush(ctx, latencyKey, lt)
		pipe.LTrim(ctx, latencyKey, 0, latencyKeep-1)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("store latency: %w", err)
		}
	}

	z := query.Get("z")
	if z == "" {
		return nil
	}
	id, err := s.Client.Get(ctx, "sandbox:z:"+z).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup request: %w", err)
	}
	return s.Client.HSet(ctx, "sandbox:request:"+id, "pixel_lt", lt, "pixel_to", query.Get("to")).Err()
}

// Stats summarises today's sandbox traffic.
type Stats struct {
	Day            string              `json:"day"`
	Requests       map[string]int64    `json:"requests"`
	Devices        map[string]int64    `json:"devices"`
	Pixels         int64               `json:"pixels"`
	AvgLatency     float64             `json:"avg_latency_seconds"`
	RecentRequests []map[string]string `json:"recent_requests"`
}

var (
	requestTypeLabels = map[string]string{"0": "ad", "1": "analytics", "2": "combined"}
	deviceLabels      = []string{"desktop", "mobile", "tablet", "bot", "other"}
)

// Stats reads today's counters plus the most recent limit requests.
func (s *Store) Stats(ctx context.Context, limit int) (Stats, error) {
	day := s.day()
	st := Stats{
		Day:      day,
		Requests: make(map[string]int64),
		Devices:  make(map[string]int64),
	}

	for rt, label := range requestTypeLabels {
		n, err := s.Client.Get(ctx, fmt.Sprintf("sandbox:requests:%s:%s", rt, day)).Int64()
		if err != nil && err != redis.Nil {
			return st, fmt.Errorf("read request count: %w", err)
		}
		st.Requests[label] = n
	}
	for _, device := range deviceLabels {
		n, err := s.Client.Get(ctx, fmt.Sprintf("sandbox:device:%s:%s", device, day)).Int64()
		if err != nil && err != redis.Nil {
			return st, fmt.Errorf("read device count: %w", err)
		}
		st.Devices[device] = n
	}

	pixels, err := s.Client.Get(ctx, "sandbox:pixels:"+day).Int64()
	if err != nil && err != redis.Nil {
		return st, fmt.Errorf("read pixel count: %w", err)
	}
	st.Pixels = pixels

	latencies, err := s.Client.LRange(ctx, latencyKey, 0, -1).Result()
	if err != nil {
		return st, fmt.Errorf("read latencies: %w", err)
	}
	var sum float64
	for _, l := range latencies {
		if f, err := strconv.ParseFloat(l, 64); err == nil {
			sum += f
		}
	}
	if len(latencies) > 0 {
		st.AvgLatency = sum / float64(len(latencies))
	}

	ids, err := s.Client.LRange(ctx, recentKey, 0, int64(limit)-1).Result()
	if err != nil {
		return st, fmt.Errorf("read recent: %w", err)
	}
	for _, id := range ids {
		rec, err := s.Client.HGetAll(ctx, "sandbox:request:"+id).Result()
		if err != nil {
			return st, fmt.Errorf("read request %s: %w", id, err)
		}
		if len(rec) == 0 {
			// expired
			continue
		}
		rec["id"] = id
		st.RecentRequests = append(st.RecentRequests, rec)
	}
	return st, nil
}
