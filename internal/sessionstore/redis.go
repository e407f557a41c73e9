package sessionstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"agent-runtime/config"
	"agent-runtime/internal/entities"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis keeps sessions in redis so several replicas can serve the same
// session. Layout under the key prefix:
//
//	session:<id>          JSON snapshot
//	session:<id>:seq      INCR counter for event seq numbers
//	session:<id>:events   list buffer of JSON events (also the pub/sub channel)
//	session:<id>:terminal SET NX marker held by the writer of the terminal event
//	sessions              set of known ids
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.SugaredLogger
	now    func() time.Time
}

// storedSession keeps fields the public JSON form hides.
type storedSession struct {
	Session   entities.DebugSession `json:"session"`
	UploadKey string                `json:"upload_key,omitempty"`
}

// NewRedis connects to cfg.Addr and verifies the connection.
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *zap.SugaredLogger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisWithClient(client, cfg.KeyPrefix, cfg.BufferTTL, log), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string, ttl time.Duration, log *zap.SugaredLogger) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		log:    log.Named("sessionstore.redis"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *Redis) sessionKey(id string) string  { return r.prefix + "session:" + id }
func (r *Redis) seqKey(id string) string      { return r.prefix + "session:" + id + ":seq" }
func (r *Redis) eventsKey(id string) string   { return r.prefix + "session:" + id + ":events" }
func (r *Redis) terminalKey(id string) string { return r.prefix + "session:" + id + ":terminal" }
func (r *Redis) indexKey() string             { return r.prefix + "sessions" }

func encodeSession(s *entities.DebugSession) ([]byte, error) {
	return json.Marshal(storedSession{Session: *s, UploadKey: s.UploadKey})
}

func decodeSession(raw string) (*entities.DebugSession, error) {
	var st storedSession
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	st.Session.UploadKey = st.UploadKey
	return &st.Session, nil
}

func (r *Redis) Create(ctx context.Context, s *entities.DebugSession) error {
	payload, err := encodeSession(s)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.sessionKey(s.ID), payload, r.ttl)
		p.SAdd(ctx, r.indexKey(), s.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *Redis) Save(ctx context.Context, s *entities.DebugSession) error {
	payload, err := encodeSession(s)
	if err != nil {
		return err
	}
	ok, err := r.client.SetXX(ctx, r.sessionKey(s.ID), payload, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if !ok {
		return entities.ErrSessionNotFound
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, id string) (*entities.DebugSession, error) {
	raw, err := r.client.Get(ctx, r.sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, entities.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return decodeSession(raw)
}

func (r *Redis) List(ctx context.Context) ([]*entities.DebugSession, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.sessionKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	out := make([]*entities.DebugSession, 0, len(values))
	var expired []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		s, err := decodeSession(raw)
		if err != nil {
			r.log.Warnw("skip undecodable session", "session_id", ids[i], "error", err)
			continue
		}
		out = append(out, s)
	}
	if len(expired) > 0 {
		_ = r.client.SRem(ctx, r.indexKey(), expired...).Err()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, r.sessionKey(id))
		p.Del(ctx, r.seqKey(id), r.eventsKey(id), r.terminalKey(id))
		p.SRem(ctx, r.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if del.Val() == 0 {
		return entities.ErrSessionNotFound
	}
	return nil
}

func (r *Redis) ClaimTerminal(ctx context.Context, id string) (bool, error) {
	exists, err := r.client.Exists(ctx, r.sessionKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("claim terminal: %w", err)
	}
	if exists == 0 {
		return false, entities.ErrSessionNotFound
	}
	ok, err := r.client.SetNX(ctx, r.terminalKey(id), r.now().Format(time.RFC3339Nano), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim terminal: %w", err)
	}
	return ok, nil
}

// appendScript assigns the next seq and buffers and publishes the event in
// one step. ARGV[1] and ARGV[2] surround the seq in the JSON payload.
var appendScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
if ARGV[3] == "0" and redis.call("EXISTS", KEYS[4]) == 1 then
	return -2
end
local seq = redis.call("INCR", KEYS[2])
local payload = ARGV[1] .. seq .. ARGV[2]
redis.call("RPUSH", KEYS[3], payload)
local ttl = tonumber(ARGV[4])
if ttl > 0 then
	redis.call("PEXPIRE", KEYS[3], ttl)
	redis.call("PEXPIRE", KEYS[2], ttl)
end
redis.call("PUBLISH", KEYS[3], payload)
return seq
`)

const seqField = `{"seq":0`

func (r *Redis) Append(ctx context.Context, id, typ string, data any) (entities.SessionEvent, error) {
	ev, err := newEvent(0, typ, data, r.now())
	if err != nil {
		return entities.SessionEvent{}, err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return entities.SessionEvent{}, fmt.Errorf("encode event: %w", err)
	}
	if !bytes.HasPrefix(payload, []byte(seqField)) {
		return entities.SessionEvent{}, errors.New("encode event: unexpected layout")
	}

	terminal := "0"
	if entities.TerminalEvent(typ) {
		terminal = "1"
	}
	keys := []string{r.sessionKey(id), r.seqKey(id), r.eventsKey(id), r.terminalKey(id)}
	seq, err := appendScript.Run(ctx, r.client, keys,
		`{"seq":`, string(payload[len(seqField):]), terminal, r.ttl.Milliseconds()).Int64()
	if err != nil {
		return entities.SessionEvent{}, fmt.Errorf("append event: %w", err)
	}
	switch seq {
	case -1:
		return entities.SessionEvent{}, entities.ErrSessionNotFound
	case -2:
		return entities.SessionEvent{}, entities.ErrSessionFinished
	}
	ev.Seq = seq
	return ev, nil
}

func (r *Redis) Events(ctx context.Context, id string, after int64) ([]entities.SessionEvent, error) {
	items, err := r.client.LRange(ctx, r.eventsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	if len(items) == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return nil, err
		}
	}

	events := make([]entities.SessionEvent, 0, len(items))
	for _, item := range items {
		var ev entities.SessionEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			r.log.Warnw("skip undecodable event", "session_id", id, "error", err)
			continue
		}
		if ev.Seq > after {
			events = append(events, ev)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

func (r *Redis) Subscribe(ctx context.Context, id string, after int64) (<-chan entities.SessionEvent, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}

	// Subscribe before reading the buffer so no event falls in between.
	ps := r.client.Subscribe(ctx, r.eventsKey(id))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe events: %w", err)
	}
	all, err := r.Events(ctx, id, 0)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan entities.SessionEvent)
	go func() {
		defer close(out)
		defer func() { _ = ps.Close() }()

		next := after
		send := func(ev entities.SessionEvent) bool {
			select {
			case out <- ev:
				next = ev.Seq
				return !entities.TerminalEvent(ev.Type)
			case <-ctx.Done():
				return false
			}
		}

		for _, ev := range all {
			if ev.Seq <= next {
				continue
			}
			if !send(ev) {
				return
			}
		}
		if n := len(all); n > 0 && entities.TerminalEvent(all[n-1].Type) {
			return
		}

		live := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-live:
				if !ok {
					return
				}
				var ev entities.SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				if ev.Seq <= next {
					continue
				}
				if ev.Seq > next+1 {
					missed, err := r.Events(ctx, id, next)
					if err != nil {
						return
					}
					for _, m := range missed {
						if m.Seq >= ev.Seq {
							break
						}
						if !send(m) {
							return
						}
					}
				}
				if !send(ev) {
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
