package matchmaking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/georally/internal/dependencies/mocks"
	"github.com/mcoot/georally/internal/metrics"
	"github.com/mcoot/georally/internal/model"
	"github.com/mcoot/georally/internal/services/geo"
	"github.com/mcoot/georally/internal/services/session"
	ptestutil "github.com/mcoot/georally/internal/testutil"
)

type recordingNotifier struct {
	mu        sync.Mutex
	sent      map[model.ConnectionID][]model.Event
	broadcast []model.Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(map[model.ConnectionID][]model.Event)}
}

func (n *recordingNotifier) Send(conn model.ConnectionID, ev model.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[conn] = append(n.sent[conn], ev)
}

func (n *recordingNotifier) Broadcast(ev model.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcast = append(n.broadcast, ev)
}

func (n *recordingNotifier) types(conn model.ConnectionID) []model.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	var types []model.EventType
	for _, ev := range n.sent[conn] {
		types = append(types, ev.Type)
	}
	return types
}

func (n *recordingNotifier) counts() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	var counts []int
	for _, ev := range n.broadcast {
		counts = append(counts, ev.Payload.(model.WaitingCountPayload).N)
	}
	return counts
}

type stubGenerator struct {
	round model.Round
	err   error
	calls []model.Difficulty
}

func (g *stubGenerator) Generate(d model.Difficulty) (model.Round, error) {
	g.calls = append(g.calls, d)
	r := g.round
	r.Difficulty = d
	return r, g.err
}

type nopRecorder struct{}

func (nopRecorder) RecordResult(context.Context, model.RoundResult) error { return nil }

type QueueSuite struct {
	suite.Suite
	notifier  *recordingNotifier
	generator *stubGenerator
	metrics   *metrics.Metrics
	clock     *mocks.MockClock
	registry  *session.Registry
	queue     *Queue
	ctx       context.Context
}

func TestQueueSuite(t *testing.T) {
	suite.Run(t, new(QueueSuite))
}

func (s *QueueSuite) SetupTest() {
	graph, err := geo.New([]geo.Country{
		{Name: "France", Neighbours: []string{"Spain"}},
		{Name: "Spain"},
		{Name: "Japan"},
		{Name: "Iceland"},
	}, nil)
	s.Require().NoError(err)

	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	logger := ptestutil.NopLogger()
	s.notifier = newRecordingNotifier()
	s.generator = &stubGenerator{round: model.Round{Start: "France", Middle: "Japan", Target: "Iceland"}}
	s.metrics = metrics.New()
	s.registry = session.NewRegistry(graph, s.notifier, nopRecorder{}, s.clock, s.metrics, session.DefaultTiming(), logger)
	s.queue = New(s.registry, s.generator, s.notifier, s.metrics, logger)
	s.ctx = context.Background()
}

func (s *QueueSuite) player(conn, id, name string) *session.Player {
	return s.registry.Connect(model.ConnectionID(conn), model.PlayerID(id), name)
}

func (s *QueueSuite) TestEnqueueConfirmsAndBroadcasts() {
	alice := s.player("c1", "alice", "Alice")

	s.Require().NoError(s.queue.Enqueue(s.ctx, alice, model.DifficultyEasy))

	s.Equal([]model.EventType{model.EventJoinedQueue}, s.notifier.types("c1"))
	s.Equal([]int{1}, s.notifier.counts())
	s.True(s.queue.Contains("alice"))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.WaitingPlayers))
}

func (s *QueueSuite) TestEnqueueRejectsUnknownDifficulty() {
	alice := s.player("c1", "alice", "Alice")

	err := s.queue.Enqueue(s.ctx, alice, "impossible")
	s.ErrorIs(err, model.ErrValidation)
	s.False(s.queue.Contains("alice"))
}

func (s *QueueSuite) TestDuplicateJoinIsNoop() {
	alice := s.player("c1", "alice", "Alice")
	s.Require().NoError(s.queue.Enqueue(s.ctx, alice, model.DifficultyEasy))
	s.Require().NoError(s.queue.Enqueue(s.ctx, alice, model.DifficultyHard))

	s.Equal([]int{1}, s.notifier.counts())
	s.Equal(1, s.queue.Snapshot().Total)
	s.Equal(1, s.queue.Snapshot().Waiting[model.DifficultyEasy])
	s.Zero(s.queue.Snapshot().Waiting[model.DifficultyHard])
}

func (s *QueueSuite) TestPairsSameDifficulty() {
	alice := s.player("c1", "alice", "Alice")
	bob := s.player("c2", "bob", "Bob")

	s.Require().NoError(s.queue.Enqueue(s.ctx, alice, model.DifficultyMedium))
	s.Require().NoError(s.queue.Enqueue(s.ctx, bob, model.DifficultyMedium))

	s.Equal([]model.Difficulty{model.DifficultyMedium}, s.generator.calls)
	s.Equal([]int{1, 2, 0}, s.notifier.counts())
	s.Equal([]model.EventType{model.EventJoinedQueue, model.EventRoundStart}, s.notifier.types("c1"))
	s.Equal([]model.EventType{model.EventJoinedQueue, model.EventRoundStart}, s.notifier.types("c2"))

	s.NotEmpty(alice.SessionID())
	s.Equal(alice.SessionID(), bob.SessionID())
	s.True(s.registry.InLiveSession("alice"))
	s.False(s.queue.Contains("alice"))
	s.Zero(testutil.ToFloat64(s.metrics.WaitingPlayers))
}

func (s *QueueSuite) TestDifferentDifficultiesDoNotPair() {
	s.Require().NoError(s.queue.Enqueue(s.ctx, s.player("c1", "alice", "Alice"), model.DifficultyEasy))
	s.Require().NoError(s.queue.Enqueue(s.ctx, s.player("c2", "bob", "Bob"), model.DifficultyHard))

	s.Empty(s.generator.calls)
	snap := s.queue.Snapshot()
	s.Equal(2, snap.Total)
	s.Equal(1, snap.Waiting[model.DifficultyEasy])
	s.Equal(1, snap.Waiting[model.DifficultyHard])
	s.Zero(snap.Waiting[model.DifficultyMedium])
}

func (s *QueueSuite) TestPairsInArrivalOrder() {
	alice := s.player("c1", "alice", "Alice")
	bob := s.player("c2", "bob", "Bob")
	carol := s.player("c3", "carol", "Carol")

	s.Require().NoError(s.queue.Enqueue(s.ctx, alice, model.DifficultyEasy))
	s.Require().NoError(s.queue.Enqueue(s.ctx, s.player("c4", "dave", "Dave"), model.DifficultyHard))
	s.Require().NoError(s.queue.Enqueue(s.ctx, bob, model.DifficultyEasy))
	s.Require().NoError(s.queue.Enqueue(s.ctx, carol, model.DifficultyEasy))

	s.Equal(alice.SessionID(), bob.SessionID())
	s.Empty(carol.SessionID())
	s.True(s.queue.Contains("carol"))
	s.True(s.queue.Contains("dave"))
}

func (s *QueueSuite) TestPlayerInLiveSessionCannotQueue() {
	alice := s.player("c1", "alice", "Alice")
	s.Require().NoError(s.queue.Enqueue(s.ctx, alice, model.DifficultyEasy))
	s.Require().NoError(s.queue.Enqueue(s.ctx, s.player("c2", "bob", "Bob"), model.DifficultyEasy))

	s.Require().NoError(s.queue.Enqueue(s.ctx, alice, model.DifficultyEasy))
	s.False(s.queue.Contains("alice"))
}

func (s *QueueSuite) TestRequeueAfterEndedRound() {
	alice := s.player("c1", "alice", "Alice")
	bob := s.player("c2", "bob", "Bob")
	s.Require().NoError(s.queue.Enqueue(s.ctx, alice, model.DifficultyEasy))
	s.Require().NoError(s.queue.Enqueue(s.ctx, bob, model.DifficultyEasy))

	sess, err := s.registry.Session(alice.SessionID())
	s.Require().NoError(err)
	_, _ = sess.Handle(s.ctx, session.Reconnect{PlayerID: "alice"})
	_, _ = sess.Handle(s.ctx, session.Reconnect{PlayerID: "bob"})
	s.clock.Advance(session.DefaultTiming().SettleDelay)
	_, err = sess.Handle(s.ctx, session.Finish{PlayerID: "alice", WinnerID: "alice", Moves: 1})
	s.Require().NoError(err)

	s.Require().NoError(s.queue.Enqueue(s.ctx, alice, model.DifficultyHard))

	s.True(s.queue.Contains("alice"))
	s.Empty(alice.SessionID())
	s.Equal(sess.ID(), bob.SessionID())
}

func (s *QueueSuite) TestRemove() {
	alice := s.player("c1", "alice", "Alice")
	s.Require().NoError(s.queue.Enqueue(s.ctx, alice, model.DifficultyEasy))

	s.True(s.queue.Remove(alice))
	s.False(s.queue.Contains("alice"))
	s.Equal([]int{1, 0}, s.notifier.counts())

	s.False(s.queue.Remove(alice))
	s.Equal([]int{1, 0}, s.notifier.counts())
}

func (s *QueueSuite) TestRemoveKeepsOrder() {
	alice := s.player("c1", "alice", "Alice")
	bob := s.player("c2", "bob", "Bob")
	carol := s.player("c3", "carol", "Carol")
	dave := s.player("c4", "dave", "Dave")
	s.Require().NoError(s.queue.Enqueue(s.ctx, alice, model.DifficultyHard))
	s.queue.Remove(alice)
	s.Require().NoError(s.queue.Enqueue(s.ctx, bob, model.DifficultyHard))
	s.Require().NoError(s.queue.Enqueue(s.ctx, carol, model.DifficultyHard))
	s.Require().NoError(s.queue.Enqueue(s.ctx, dave, model.DifficultyHard))

	s.Equal(bob.SessionID(), carol.SessionID())
	s.True(s.queue.Contains("dave"))
	s.Empty(alice.SessionID())
}

func (s *QueueSuite) TestGenerationFailureNotifiesPair() {
	s.generator.err = model.ErrGenerationExhausted
	alice := s.player("c1", "alice", "Alice")
	bob := s.player("c2", "bob", "Bob")

	s.Require().NoError(s.queue.Enqueue(s.ctx, alice, model.DifficultyHard))
	s.Require().NoError(s.queue.Enqueue(s.ctx, bob, model.DifficultyHard))

	s.Equal([]model.EventType{model.EventJoinedQueue, model.EventMatchFailed}, s.notifier.types("c1"))
	s.Equal([]model.EventType{model.EventJoinedQueue, model.EventMatchFailed}, s.notifier.types("c2"))
	s.Empty(alice.SessionID())
	s.False(s.queue.Contains("alice"))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.GenerationFailures))

	// Both may join again
	s.Require().NoError(s.queue.Enqueue(s.ctx, alice, model.DifficultyHard))
	s.True(s.queue.Contains("alice"))
}
