package login

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ytget/cilicili/internal/model"
)

func TestTickerScheduler_EveryStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var calls atomic.Int32
	h := TickerScheduler{}.Every(time.Millisecond, func() { calls.Add(1) })

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	h.Cancel()
	h.Cancel()

	// allow an in-flight call to finish, then expect silence
	time.Sleep(10 * time.Millisecond)
	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}

func TestTickerScheduler_CancelFromInsideTask(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var calls atomic.Int32
	var h Handle
	ready := make(chan struct{})
	h = TickerScheduler{}.Every(time.Millisecond, func() {
		<-ready
		calls.Add(1)
		h.Cancel()
	})
	close(ready)

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTickerScheduler_AfterCancel(t *testing.T) {
	var fired atomic.Bool
	h := TickerScheduler{}.After(20*time.Millisecond, func() { fired.Store(true) })
	h.Cancel()
	time.Sleep(40 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestController_RealSchedulerDoesNotLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	api := &fakeAuthAPI{
		challenges: []model.LoginChallenge{challenge("k1")},
		results:    []model.PollResult{pending(), success("tok1")},
	}
	sink := &recordingSink{}
	dismissed := make(chan struct{})
	ctrl := NewController(api, sink,
		WithPollInterval(2*time.Millisecond),
		WithDismissDelay(time.Millisecond),
		WithLogger(zerolog.Nop()),
	)
	ctrl.OnDismiss(func() { close(dismissed) })

	attempt, err := ctrl.Acquire(context.Background())
	require.NoError(t, err)
	defer attempt.Close()

	select {
	case <-dismissed:
	case <-time.After(2 * time.Second):
		t.Fatal("login did not complete")
	}
	assert.Equal(t, model.LoginStateSuccess, ctrl.Status().State)
	assert.Equal(t, 2, api.pollCount())
	require.Len(t, sink.snapshot(), 1)
	assert.Equal(t, "tok1", sink.snapshot()[0].credential)
}
