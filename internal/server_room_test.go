package internal

import (
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestRoom(name string, opts ...RoomOption) *ChatRoom {
	return NewChatRoom(RoomMetadata{Name: name, Description: name + " room"}, opts...)
}

func session(sessionID, userID string) SessionAndUserID {
	return SessionAndUserID{SessionID: sessionID, UserID: userID}
}

func TestChatRoom_FirstSessionBroadcastsJoined(t *testing.T) {
	req := require.New(t)
	room := newTestRoom("general")
	observer := room.Subscribe()

	// Given U1 joins from S1
	_, first := room.Join(session("S1", "U1"))
	req.Equal([]string{"U1"}, room.UniqueUserIDs())
	req.Equal(RoomParticipationEvent{Room: "general", UserID: "U1", Status: StatusJoined}, receive(t, observer))

	// When U1 joins again from S2
	_, second := room.Join(session("S2", "U1"))

	// Then nothing new is broadcast
	requireNoEvent(t, observer)
	req.Equal([]string{"U1"}, room.UniqueUserIDs())
	req.Equal("general", first.Room())
	req.Equal("S2", second.SessionID())
	req.Equal("U1", second.UserID())
}

func TestChatRoom_LastSessionBroadcastsLeft(t *testing.T) {
	req := require.New(t)
	room := newTestRoom("general")
	_, s1 := room.Join(session("S1", "U1"))
	_, s2 := room.Join(session("S2", "U1"))
	observer := room.Subscribe()

	room.Leave(s1)
	requireNoEvent(t, observer)
	req.Equal([]string{"U1"}, room.UniqueUserIDs())

	room.Leave(s2)
	req.Equal(RoomParticipationEvent{Room: "general", UserID: "U1", Status: StatusLeft}, receive(t, observer))
	req.Empty(room.UniqueUserIDs())
}

func TestChatRoom_LeaveTwiceIsNoop(t *testing.T) {
	req := require.New(t)
	room := newTestRoom("general")
	_, s1 := room.Join(session("S1", "U1"))
	_, s2 := room.Join(session("S2", "U1"))
	observer := room.Subscribe()

	room.Leave(s1)
	room.Leave(s1)
	room.Leave(nil)

	requireNoEvent(t, observer)
	req.Equal([]string{"U1"}, room.UniqueUserIDs())

	room.Leave(s2)
	req.Equal(StatusLeft, receive(t, observer).(RoomParticipationEvent).Status)
}

func TestChatRoom_LeaveIgnoresHandleFromAnotherRoom(t *testing.T) {
	req := require.New(t)
	general := newTestRoom("general")
	random := newTestRoom("random")
	_, fromGeneral := general.Join(session("S1", "U1"))
	_, _ = random.Join(session("S1", "U1"))
	observer := random.Subscribe()

	random.Leave(fromGeneral)

	requireNoEvent(t, observer)
	req.Equal([]string{"U1"}, random.UniqueUserIDs())
	req.Equal([]string{"U1"}, general.UniqueUserIDs())

	// the handle still works in its own room
	general.Leave(fromGeneral)
	req.Empty(general.UniqueUserIDs())
}

func TestChatRoom_JoinSubscriptionSeesOwnJoined(t *testing.T) {
	req := require.New(t)
	room := newTestRoom("general")

	sub, _ := room.Join(session("S1", "U1"))

	req.Equal(RoomParticipationEvent{Room: "general", UserID: "U1", Status: StatusJoined}, receive(t, sub))
}

func TestChatRoom_HistoryKeepsLastTen(t *testing.T) {
	req := require.New(t)
	room := newTestRoom("general")

	for i := 0; i <= 10; i++ {
		room.SendMessage("U1", fmt.Sprintf("m%d", i))
	}

	history := room.History()
	req.Len(history, MaxHistory)
	for i, entry := range history {
		req.Equal(fmt.Sprintf("m%d", i+1), entry.Content)
		req.Equal("general", entry.Room)
	}
}

func TestChatRoom_HistoryBoundedForAnyCount(t *testing.T) {
	for _, n := range []int{0, 1, 9, 10, 11, 25} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			req := require.New(t)
			room := newTestRoom("general")
			for i := 0; i < n; i++ {
				room.RecordMessage(message("general", "U1", fmt.Sprint(i)))
			}

			history := room.History()
			req.Len(history, min(n, MaxHistory))
			for i, entry := range history {
				req.Equal(fmt.Sprint(n-len(history)+i), entry.Content)
			}
		})
	}
}

func TestChatRoom_HistoryIsACopy(t *testing.T) {
	req := require.New(t)
	room := newTestRoom("general")
	room.SendMessage("U1", "original")

	history := room.History()
	history[0].Content = "changed"

	req.Equal("original", room.History()[0].Content)
}

func TestChatRoom_SendMessageBroadcasts(t *testing.T) {
	req := require.New(t)
	room := newTestRoom("general")
	observer := room.Subscribe()

	room.SendMessage("bot", "welcome")

	req.Equal(message("general", "bot", "welcome"), receive(t, observer))
}

func TestChatRoom_SendMessageWithoutSubscribersStillRecords(t *testing.T) {
	req := require.New(t)
	room := newTestRoom("general")

	room.SendMessage("bot", "nobody listening")

	req.Equal([]UserMessageEvent{message("general", "bot", "nobody listening")}, room.History())
}

func TestChatRoom_RecordMessageDoesNotBroadcast(t *testing.T) {
	req := require.New(t)
	room := newTestRoom("general")
	observer := room.Subscribe()

	room.RecordMessage(message("general", "U1", "quiet"))

	requireNoEvent(t, observer)
	req.Len(room.History(), 1)
}

func TestChatRoom_SlowSubscriberDoesNotStallOthers(t *testing.T) {
	req := require.New(t)
	room := newTestRoom("general", WithBroadcastCapacity(2))
	_, _ = room.Join(session("S1", "lurker")) // never reads
	fast, handle := room.Join(session("S2", "talker"))

	for i := 0; i < 20; i++ {
		req.NoError(handle.SendMessage(fmt.Sprint(i)))
		evt := receive(t, fast)
		if _, ok := evt.(RoomParticipationEvent); ok {
			evt = receive(t, fast)
		}
		req.Equal(fmt.Sprint(i), evt.(UserMessageEvent).Content)
	}
}

func TestChatRoom_SnapshotMatchesState(t *testing.T) {
	req := require.New(t)
	room := newTestRoom("general")
	room.Join(session("S1", "bob"))
	room.Join(session("S2", "alice"))
	room.SendMessage("bob", "hey")

	users, history := room.Snapshot()

	req.Equal([]string{"alice", "bob"}, users)
	req.Equal([]UserMessageEvent{message("general", "bob", "hey")}, history)
}

func TestChatRoom_ConcurrentSessions(t *testing.T) {
	req := require.New(t)
	metrics := NewMetrics(nil)
	room := newTestRoom("general", WithBroadcastCapacity(8), WithMetrics(metrics))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("U%d", i%4)
			sub, handle := room.Join(session(fmt.Sprintf("S%d", i), user))
			for j := 0; j < 25; j++ {
				_ = handle.SendMessage(fmt.Sprintf("%d-%d", i, j))
			}
			sub.Close()
			room.Leave(handle)
		}(i)
	}
	wg.Wait()

	req.Empty(room.UniqueUserIDs())
	req.Len(room.History(), MaxHistory)
	req.Equal(16.0, testutil.ToFloat64(metrics.joins.WithLabelValues("general")))
	req.Equal(400.0, testutil.ToFloat64(metrics.messages.WithLabelValues("general")))

	// every Joined is matched by exactly one Left
	joined := testutil.ToFloat64(metrics.participations.WithLabelValues("general", string(StatusJoined)))
	left := testutil.ToFloat64(metrics.participations.WithLabelValues("general", string(StatusLeft)))
	req.Equal(joined, left)
	req.GreaterOrEqual(joined, 4.0)
}

func TestChatRoom_Isolation(t *testing.T) {
	req := require.New(t)
	general := newTestRoom("general")
	random := newTestRoom("random")
	randomObserver := random.Subscribe()

	_, handle := general.Join(session("S1", "U1"))
	req.NoError(handle.SendMessage("only in general"))

	requireNoEvent(t, randomObserver)
	req.Empty(random.History())
	req.Empty(random.UniqueUserIDs())
	req.Len(general.History(), 1)
}

func TestChatRoom_RecordsMetrics(t *testing.T) {
	req := require.New(t)
	metrics := NewMetrics(nil)
	room := newTestRoom("general", WithMetrics(metrics), WithBroadcastCapacity(1))
	_ = room.Subscribe()

	_, s1 := room.Join(session("S1", "U1"))
	_, s2 := room.Join(session("S2", "U1"))
	room.SendMessage("U1", "hello")
	room.Leave(s1)
	room.Leave(s2)

	req.Equal(2.0, testutil.ToFloat64(metrics.joins.WithLabelValues("general")))
	req.Equal(2.0, testutil.ToFloat64(metrics.leaves.WithLabelValues("general")))
	req.Equal(1.0, testutil.ToFloat64(metrics.messages.WithLabelValues("general")))
	req.Equal(1.0, testutil.ToFloat64(metrics.participations.WithLabelValues("general", string(StatusJoined))))
	req.Equal(1.0, testutil.ToFloat64(metrics.participations.WithLabelValues("general", string(StatusLeft))))
	req.Greater(testutil.ToFloat64(metrics.dropped.WithLabelValues("general")), 0.0)
}
