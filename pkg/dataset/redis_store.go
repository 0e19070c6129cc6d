package dataset

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultRedisPrefix = "survey"
	versionField       = "__version"
)

// RedisStore keeps every record in its own hash. Commits watch the row key and
// bump its version inside a MULTI/EXEC, so a concurrent change to the same row
// forces a retry instead of being overwritten blindly.
//
// Layout:
//
//	<prefix>:columns   list of header names
//	<prefix>:rows      row count
//	<prefix>:row:<n>   hash column -> value, 0-based n
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = &RedisStore{}
var _ Importer = &RedisStore{}

func NewRedisStore(ctx context.Context, addr string, prefix string) (*RedisStore, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis dataset store: empty address")
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "redis dataset store: ping %s", addr)
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) columnsKey() string { return s.prefix + ":columns" }
func (s *RedisStore) countKey() string { return s.prefix + ":rows" }
func (s *RedisStore) rowKey(n int) string { return fmt.Sprintf("%s:row:%d", s.prefix, n) }

func (s *RedisStore) count(ctx context.Context) (int, error) {
	n, err := s.client.Get(ctx, s.countKey()).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, errors.Wrap(err, "redis dataset store: read row count")
}

func (s *RedisStore) Import(ctx context.Context, t *Table) error {
	old, err := s.count(ctx)
	if err != nil {
		return err
	}
	header := append([]string(nil), t.Header...)
	for _, col := range []string{ColumnAnswer, ColumnStatus} {
		if t.Column(col) < 0 {
			header = append(header, col)
		}
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i := 0; i < old; i++ {
			pipe.Del(ctx, s.rowKey(i))
		}
		pipe.Del(ctx, s.columnsKey())
		cols := make([]interface{}, len(header))
		for i, h := range header {
			cols[i] = h
		}
		pipe.RPush(ctx, s.columnsKey(), cols...)
		pipe.Set(ctx, s.countKey(), len(t.Rows), 0)
		for i, row := range t.Rows {
			values := map[string]interface{}{versionField: 0}
			for c, v := range row {
				values[t.Header[c]] = v
			}
			pipe.HSet(ctx, s.rowKey(i), values)
		}
		return nil
	})
	return errors.Wrap(err, "redis dataset store: import")
}

func (s *RedisStore) Load(ctx context.Context) (*Table, error) {
	header, err := s.client.LRange(ctx, s.columnsKey(), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis dataset store: read columns")
	}
	if len(header) == 0 {
		header = []string{ColumnAnswer, ColumnStatus}
	}
	n, err := s.count(ctx)
	if err != nil {
		return nil, err
	}
	t := NewTable(header, nil)
	for i := 0; i < n; i++ {
		values, err := s.client.HGetAll(ctx, s.rowKey(i)).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "redis dataset store: read row %d", i+1)
		}
		row := make([]string, len(header))
		for c, h := range header {
			row[c] = values[h]
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func (s *RedisStore) CommitAnswer(ctx context.Context, rowIndex int, answer string) error {
	n, err := s.count(ctx)
	if err != nil {
		return err
	}
	if rowIndex-1 < 0 || rowIndex-1 >= n {
		return errors.Wrapf(ErrRowOutOfRange, "row %d (rows: %d)", rowIndex, n)
	}
	key := s.rowKey(rowIndex - 1)

	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.HGet(ctx, key, versionField).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			version, _ := strconv.ParseInt(raw, 10, 64)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key,
					ColumnAnswer, answer,
					ColumnStatus, StatusCompleted,
					versionField, version+1,
				)
				return nil
			})
			return err
		}, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return errors.Wrapf(err, "redis dataset store: commit row %d", rowIndex)
		}
		log.Debug().Int("row_index", rowIndex).Int("attempt", attempt).Msg("redis dataset store: row changed during commit, retrying")
	}
	return errors.Errorf("redis dataset store: row %d kept changing, gave up after %d attempts", rowIndex, maxCommitAttempts)
}

func (s *RedisStore) Close() error { return s.client.Close() }
