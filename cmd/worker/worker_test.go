package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/notify"
)

func TestNewNotifier_WithoutRedisLogs(t *testing.T) {
	n, closeFn := newNotifier(&config.Config{}, zap.NewNop())
	defer closeFn()

	assert.IsType(t, &notify.LogNotifier{}, n)
	assert.NoError(t, n.Notify(context.Background(), "user-1", notify.EventCampaignProgress, notify.CampaignProgress{}))
}

func TestNewNotifier_PublishesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	n, closeFn := newNotifier(&config.Config{RedisAddr: mr.Addr()}, zap.NewNop())
	defer closeFn()
	require.IsType(t, &notify.RedisNotifier{}, n)

	sub := mr.NewSubscriber()
	defer sub.Close()
	sub.Subscribe(notify.ChannelPrefix + "user-1")

	require.NoError(t, n.Notify(context.Background(), "user-1", notify.EventCampaignProgress, notify.CampaignProgress{CampaignID: "c-1", Status: "Completed", SentCount: 2}))

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, notify.ChannelPrefix+"user-1", msg.Channel)
		assert.JSONEq(t,
			`{"event":"CAMPAIGN_PROGRESS","payload":{"campaignId":"c-1","status":"Completed","sentCount":2}}`,
			msg.Message)
	case <-time.After(time.Second):
		t.Fatal("no message published")
	}
}
