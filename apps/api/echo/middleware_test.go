package echoapi

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"github.com/edurpg/edurpg/core"
)

func setClock(t *testing.T) *time.Time {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = orig })
	return &now
}

func TestLimiters_evictsIdleClients(t *testing.T) {
	now := setClock(t)
	l := newLimiters(rate.Limit(1), 1, 100)

	l.get("ip:1")
	l.get("ip:2")
	assert.Equal(t, 2, l.size())

	*now = now.Add(limiterIdleTTL / 2)
	l.get("ip:2")

	*now = now.Add(limiterIdleTTL/2 + time.Second)
	l.get("ip:3")
	assert.Equal(t, 2, l.size(), "ip:1 has been idle past the ttl")
	_, ok := l.m["ip:1"]
	assert.False(t, ok)
	_, ok = l.m["ip:2"]
	assert.True(t, ok)
}

func TestLimiters_keepsStateForActiveClients(t *testing.T) {
	setClock(t)
	l := newLimiters(rate.Limit(1), 1, 100)

	assert.True(t, l.get("user:a").Allow())
	assert.False(t, l.get("user:a").Allow(), "same bucket is reused")
	assert.True(t, l.get("user:b").Allow())
}

func TestLimiters_bounded(t *testing.T) {
	now := setClock(t)
	l := newLimiters(rate.Limit(1), 1, 10)

	for i := 0; i < 50; i++ {
		*now = now.Add(time.Millisecond)
		l.get(fmt.Sprintf("ip:%d", i))
	}
	assert.Equal(t, 10, l.size())
	_, ok := l.m["ip:49"]
	assert.True(t, ok)
	_, ok = l.m["ip:0"]
	assert.False(t, ok, "least recently seen client is evicted first")
}
