package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type window struct {
	start int64
	count int64
}

// fakeScripter evaluates the fixed-window script in memory.
type fakeScripter struct {
	windows map[string]*window
	keys    []string
	args    [][]interface{}
	err     error
	reply   []interface{}
}

func newFakeScripter() *fakeScripter {
	return &fakeScripter{windows: map[string]*window{}}
}

func (f *fakeScripter) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *goredis.Cmd {
	cmd := goredis.NewCmd(ctx)
	f.keys = append(f.keys, keys...)
	f.args = append(f.args, args)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	if f.reply != nil {
		cmd.SetVal(f.reply)
		return cmd
	}
	now, windowSecs, max := args[0].(int64), args[1].(int64), int64(args[2].(int))
	w, ok := f.windows[keys[0]]
	if !ok || now-w.start >= windowSecs {
		f.windows[keys[0]] = &window{start: now, count: 1}
		cmd.SetVal([]interface{}{now, int64(1), int64(1)})
		return cmd
	}
	if w.count >= max {
		cmd.SetVal([]interface{}{w.start, w.count, int64(0)})
		return cmd
	}
	w.count++
	cmd.SetVal([]interface{}{w.start, w.count, int64(1)})
	return cmd
}

func (f *fakeScripter) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd {
	return f.EvalSha(ctx, "", keys, args...)
}

func (f *fakeScripter) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeScripter) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *goredis.Cmd {
	return f.EvalSha(ctx, sha1, keys, args...)
}

func (f *fakeScripter) ScriptExists(ctx context.Context, hashes ...string) *goredis.BoolSliceCmd {
	return goredis.NewBoolSliceCmd(ctx)
}

func (f *fakeScripter) ScriptLoad(ctx context.Context, script string) *goredis.StringCmd {
	return goredis.NewStringCmd(ctx)
}

func TestRateLimitStore_Hit_fixedWindow(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeScripter()
	store := NewRateLimitStore(rdb)
	start := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		c, ok, err := store.Hit(ctx, "rsvp:1.2.3.4", start.Add(time.Duration(i)*time.Second), time.Minute, 3)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, i, c.Count)
	}

	c, ok, err := store.Hit(ctx, "rsvp:1.2.3.4", start.Add(30*time.Second), time.Minute, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, c.Count)
	assert.Equal(t, start.Add(time.Second).Unix(), c.WindowStart.Unix())
	assert.Equal(t, "rsvp:1.2.3.4", c.Key)

	c, ok, err = store.Hit(ctx, "rsvp:1.2.3.4", start.Add(61*time.Second), time.Minute, 3)
	require.NoError(t, err)
	assert.True(t, ok, "a new window starts once the old one expires")
	assert.Equal(t, 1, c.Count)

	assert.Equal(t, "guestlist:ratelimit:rsvp:1.2.3.4", rdb.keys[0])
	assert.Equal(t, []interface{}{start.Add(time.Second).Unix(), int64(60), 3}, rdb.args[0])
}

func TestRateLimitStore_Hit_options(t *testing.T) {
	rdb := newFakeScripter()
	store := NewRateLimitStore(rdb, WithKeyPrefix(":app:rl:"))

	_, _, err := store.Hit(context.Background(), "auth_login:ip", time.Unix(100, 0), 500*time.Millisecond, 1)
	require.NoError(t, err)
	assert.Equal(t, "app:rl:auth_login:ip", rdb.keys[0])
	assert.Equal(t, int64(1), rdb.args[0][1], "sub-second windows round up to one second")
}

func TestRateLimitStore_Hit_errors(t *testing.T) {
	ctx := context.Background()

	rdb := newFakeScripter()
	rdb.err = errors.New("connection refused")
	_, _, err := NewRateLimitStore(rdb).Hit(ctx, "k", time.Unix(0, 0), time.Minute, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit script")

	rdb = newFakeScripter()
	rdb.reply = []interface{}{int64(1)}
	_, _, err = NewRateLimitStore(rdb).Hit(ctx, "k", time.Unix(0, 0), time.Minute, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected reply")
}
