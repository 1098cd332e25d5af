package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/georally/internal/dependencies/mocks"
	"github.com/mcoot/georally/internal/metrics"
	"github.com/mcoot/georally/internal/model"
	ptestutil "github.com/mcoot/georally/internal/testutil"
)

type SessionSuite struct {
	suite.Suite
	clock    *mocks.MockClock
	sender   *recordingSender
	recorder *stubRecorder
	metrics  *metrics.Metrics
	registry *Registry
	ctx      context.Context

	alice   *Player
	bob     *Player
	session *Session
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

var mediumRound = model.Round{
	Difficulty: model.DifficultyMedium,
	Start:      "Chile",
	Middle:     "Brazil",
	Target:     "Portugal",
}

func (s *SessionSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.sender = newRecordingSender()
	s.recorder = &stubRecorder{}
	s.metrics = metrics.New()
	s.registry = NewRegistry(testGraph(), s.sender, s.recorder, s.clock, s.metrics, DefaultTiming(), ptestutil.NopLogger())
	s.ctx = context.Background()

	s.alice = s.registry.Connect("conn-alice", "alice", "Alice")
	s.bob = s.registry.Connect("conn-bob", "bob", "Bob")
}

func (s *SessionSuite) create(round model.Round) {
	sess, err := s.registry.CreateSession(round, s.alice, s.bob)
	s.Require().NoError(err)
	s.session = sess
}

func (s *SessionSuite) handle(cmd Command) (*model.Event, error) {
	return s.session.Handle(s.ctx, cmd)
}

// startPlaying creates a session, completes the handshake and waits out the settle delay
func (s *SessionSuite) startPlaying(round model.Round) {
	s.create(round)
	_, err := s.handle(Reconnect{PlayerID: "alice"})
	s.Require().NoError(err)
	_, err = s.handle(Reconnect{PlayerID: "bob"})
	s.Require().NoError(err)
	s.clock.Advance(DefaultTiming().SettleDelay)
	s.Require().Equal(model.SessionStatePlaying, s.session.State())
	s.sender.reset()
}

func (s *SessionSuite) disconnect(p *Player) {
	_, ok := s.registry.ReleaseConnection(p.Connection())
	s.Require().True(ok)
	_, err := s.handle(Disconnect{PlayerID: p.ID()})
	s.Require().NoError(err)
}

// Round start

func (s *SessionSuite) TestCreateSessionAnnouncesRound() {
	s.create(mediumRound)

	a := s.sender.last("conn-alice")
	b := s.sender.last("conn-bob")
	s.Equal(model.EventRoundStart, a.Type)
	s.Equal(model.EventRoundStart, b.Type)

	ap := a.Payload.(model.RoundStartPayload)
	bp := b.Payload.(model.RoundStartPayload)
	s.Equal(s.session.ID(), ap.SessionID)
	s.Equal(ap.SessionID, bp.SessionID)
	s.Equal("Chile", ap.Start)
	s.Equal(ap.Middle, bp.Middle)
	s.Equal(ap.Target, bp.Target)
	s.Nil(ap.Banned)
	s.Equal(model.DifficultyMedium, bp.Difficulty)
	s.Equal(model.PlayerID("alice"), ap.PlayerID)
	s.Equal("Bob", ap.OpponentName)
	s.Equal("Alice", bp.OpponentName)

	s.Equal(model.SessionStateCreated, s.session.State())
	s.Equal(s.session.ID(), s.alice.SessionID())
}

func (s *SessionSuite) TestCreateSessionRejectsSamePlayer() {
	_, err := s.registry.CreateSession(mediumRound, s.alice, s.alice)
	s.ErrorIs(err, model.ErrValidation)
}

// Handshake

func (s *SessionSuite) TestHandshakeStartsAfterSettleDelay() {
	s.create(mediumRound)
	s.sender.reset()

	_, err := s.handle(Reconnect{PlayerID: "alice"})
	s.Require().NoError(err)
	s.Equal([]model.EventType{model.EventWaitingForOpponent}, s.sender.types("conn-alice"))

	_, err = s.handle(Reconnect{PlayerID: "bob"})
	s.Require().NoError(err)
	s.Equal(model.EventOpponentConnected, s.sender.last("conn-alice").Type)
	s.Equal(model.EventOpponentConnected, s.sender.last("conn-bob").Type)

	s.clock.Advance(3 * time.Second)
	s.Equal(model.SessionStateCreated, s.session.State())

	s.clock.Advance(time.Second)
	s.Equal(model.SessionStatePlaying, s.session.State())
	s.Equal(model.EventRoundStarted, s.sender.last("conn-alice").Type)
	s.Equal(model.EventRoundStarted, s.sender.last("conn-bob").Type)
}

func (s *SessionSuite) TestRepeatedHandshakeDoesNotRestartSettle() {
	s.create(mediumRound)
	_, _ = s.handle(Reconnect{PlayerID: "alice"})
	_, _ = s.handle(Reconnect{PlayerID: "bob"})
	s.clock.Advance(2 * time.Second)
	_, _ = s.handle(Reconnect{PlayerID: "bob"})

	s.clock.Advance(2 * time.Second)
	s.Equal(model.SessionStatePlaying, s.session.State())
}

func (s *SessionSuite) TestHandshakeTimeoutCancelsRound() {
	s.create(mediumRound)
	_, _ = s.handle(Reconnect{PlayerID: "alice"})

	s.clock.Advance(DefaultTiming().HandshakeTimeout)

	s.Equal(model.SessionStateEnded, s.session.State())
	s.Equal(model.EventRoundCancelled, s.sender.last("conn-alice").Type)
	s.False(s.registry.InLiveSession("alice"))
	s.Empty(s.recorder.recorded())
}

func (s *SessionSuite) TestSubmitBeforePlayingIsRejected() {
	s.create(mediumRound)

	_, err := s.handle(SubmitAnswer{PlayerID: "alice", Country: "Chile", Neighbour: "Argentina", Target: "Brazil"})
	s.ErrorIs(err, model.ErrInvalidState)
}

func (s *SessionSuite) TestDisconnectBeforeHandshakeIsIgnored() {
	s.create(mediumRound)
	s.sender.reset()

	s.disconnect(s.alice)

	s.Empty(s.sender.types("conn-bob"))
	s.Equal(1, s.clock.PendingTimers()) // handshake only
	s.Equal(model.SessionStateCreated, s.session.State())
}

// Verification

func (s *SessionSuite) TestVerifyValid() {
	s.create(mediumRound)
	timeLeft := 42
	_, err := s.handle(SaveProgress{PlayerID: "alice", Path: json.RawMessage(`["Chile","Argentina"]`), TimeLeft: &timeLeft})
	s.Require().NoError(err)

	reply, err := s.handle(Verify{PlayerID: "alice", Round: mediumRound})
	s.Require().NoError(err)
	s.Require().NotNil(reply)

	payload := reply.Payload.(model.RoundVerifiedPayload)
	s.False(payload.Invalid)
	s.Nil(payload.ErrorMessage)
	s.JSONEq(`["Chile","Argentina"]`, string(payload.Path))
	s.Equal(42, *payload.TimeLeft)
}

func (s *SessionSuite) TestVerifyMismatchOnBanned() {
	s.create(mediumRound)
	tampered := mediumRound
	tampered.Banned = "Argentina"

	reply, err := s.handle(Verify{PlayerID: "alice", Round: tampered})
	s.ErrorIs(err, model.ErrStaleParameters)

	payload := reply.Payload.(model.RoundVerifiedPayload)
	s.True(payload.Invalid)
	s.Equal("Invalid game data", *payload.ErrorMessage)
}

func (s *SessionSuite) TestVerifyMismatchOnDifficulty() {
	s.create(mediumRound)
	tampered := mediumRound
	tampered.Difficulty = model.DifficultyHard

	reply, _ := s.handle(Verify{PlayerID: "alice", Round: tampered})
	s.True(reply.Payload.(model.RoundVerifiedPayload).Invalid)
}

func (s *SessionSuite) TestVerifyNonParticipant() {
	s.create(mediumRound)

	reply, err := s.handle(Verify{PlayerID: "mallory", Round: mediumRound})
	s.ErrorIs(err, model.ErrNotParticipant)

	payload := reply.Payload.(model.RoundVerifiedPayload)
	s.True(payload.Invalid)
	s.Equal("You are not part of this game", *payload.ErrorMessage)
}

func (s *SessionSuite) TestVerifyAfterEndIsMismatch() {
	s.startPlaying(mediumRound)
	_, err := s.handle(Finish{PlayerID: "alice", WinnerID: "alice", Moves: 4})
	s.Require().NoError(err)

	reply, err := s.handle(Verify{PlayerID: "alice", Round: mediumRound})
	s.ErrorIs(err, model.ErrStaleParameters)
	s.True(reply.Payload.(model.RoundVerifiedPayload).Invalid)
}

// Answers

func (s *SessionSuite) submit(country, neighbour, target string) (*model.Event, error) {
	return s.handle(SubmitAnswer{PlayerID: "alice", Country: country, Neighbour: neighbour, Target: target})
}

func (s *SessionSuite) TestGroundAnswer() {
	s.startPlaying(mediumRound)

	reply, err := s.submit("Chile", "Argentina", "Brazil")
	s.Require().NoError(err)
	s.Equal(model.EventAnswerAccepted, reply.Type)
	s.Equal(model.AnswerAcceptedPayload{Country: "Chile", Neighbour: "Argentina", Kind: model.AnswerKindGround}, reply.Payload)
}

func (s *SessionSuite) TestOverseasAnswer() {
	s.startPlaying(mediumRound)

	reply, err := s.submit("Brazil", "Portugal", "Portugal")
	s.Require().NoError(err)
	s.Equal(model.AnswerAcceptedPayload{Country: "Brazil", Neighbour: "Portugal", Kind: model.AnswerKindOverseas}, reply.Payload)
}

func (s *SessionSuite) TestOverseasCheckedBeforeGround() {
	s.startPlaying(mediumRound)

	// Portugal and Spain share a border, but Portugal cannot reach Brazil by land
	reply, err := s.submit("Portugal", "Spain", "Brazil")
	s.Require().NoError(err)
	s.Equal(model.AnswerKindOverseas, reply.Payload.(model.AnswerAcceptedPayload).Kind)
}

func (s *SessionSuite) TestLandlockedNonNeighbourRejected() {
	s.startPlaying(mediumRound)

	reply, err := s.submit("Bolivia", "Portugal", "Portugal")
	s.Require().NoError(err)
	s.Equal(model.EventAnswerRejected, reply.Type)
	s.Equal(model.AnswerRejectedPayload{Country: "Bolivia", Neighbour: "Portugal"}, reply.Payload)
}

func (s *SessionSuite) TestSameCountryRejected() {
	s.startPlaying(mediumRound)

	reply, err := s.submit("Japan", "Japan", "Portugal")
	s.Require().NoError(err)
	s.Equal(model.EventAnswerRejected, reply.Type)
}

func (s *SessionSuite) TestBannedNeighbourRejected() {
	hard := model.Round{Difficulty: model.DifficultyHard, Start: "Chile", Middle: "Brazil", Target: "Portugal", Banned: "Argentina"}
	s.startPlaying(hard)

	reply, err := s.submit("Chile", "Argentina", "Brazil")
	s.Require().NoError(err)
	s.Equal(model.EventAnswerRejected, reply.Type)

	reply, err = s.submit("Chile", "Bolivia", "Brazil")
	s.Require().NoError(err)
	s.Equal(model.EventAnswerAccepted, reply.Type)
}

func (s *SessionSuite) TestGroundAnswerWithOtherTarget() {
	s.startPlaying(mediumRound)

	reply, err := s.submit("Chile", "Argentina", "Bolivia")
	s.Require().NoError(err)
	s.Equal(model.EventAnswerAccepted, reply.Type)
	s.Equal(model.AnswerKindGround, reply.Payload.(model.AnswerAcceptedPayload).Kind)
}

func (s *SessionSuite) TestOverseasAnswerWithOtherTarget() {
	s.startPlaying(mediumRound)

	// Japan is neither middle nor target and Chile has no land route to it
	reply, err := s.submit("Chile", "Spain", "Japan")
	s.Require().NoError(err)
	s.Equal(model.AnswerAcceptedPayload{Country: "Chile", Neighbour: "Spain", Kind: model.AnswerKindOverseas}, reply.Payload)
}

func (s *SessionSuite) TestAnswerFromNonParticipant() {
	s.startPlaying(mediumRound)

	reply, err := s.handle(SubmitAnswer{PlayerID: "mallory", Country: "Chile", Neighbour: "Argentina", Target: "Brazil"})
	s.ErrorIs(err, model.ErrNotParticipant)
	s.Nil(reply)
}

func (s *SessionSuite) TestAnswersAreCounted() {
	s.startPlaying(mediumRound)
	_, _ = s.submit("Chile", "Argentina", "Brazil")
	_, _ = s.submit("Bolivia", "Japan", "Brazil")

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Answers.WithLabelValues("ground")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Answers.WithLabelValues("rejected")))
}

// Finish

func (s *SessionSuite) TestFinishNotifiesAndRecords() {
	s.startPlaying(mediumRound)

	_, err := s.handle(Finish{PlayerID: "bob", WinnerID: "bob", Moves: 7, Reason: "target reached"})
	s.Require().NoError(err)

	s.Equal(model.NewEvent(model.EventRoundWon, model.RoundOutcomePayload{OpponentMoves: 7}), s.sender.last("conn-bob"))
	s.Equal(model.NewEvent(model.EventRoundLost, model.RoundOutcomePayload{OpponentMoves: 7}), s.sender.last("conn-alice"))
	s.Equal(model.SessionStateEnded, s.session.State())

	s.Equal([]model.RoundResult{{
		SessionID:  s.session.ID(),
		Difficulty: model.DifficultyMedium,
		Player1ID:  "alice",
		Player2ID:  "bob",
		WinnerID:   "bob",
	}}, s.recorder.recorded())
	s.Equal(model.PlayerID("bob"), s.session.Snapshot().Winner)
}

func (s *SessionSuite) TestSecondFinishIsNoop() {
	s.startPlaying(mediumRound)
	_, err := s.handle(Finish{PlayerID: "bob", WinnerID: "bob", Moves: 7})
	s.Require().NoError(err)
	s.sender.reset()

	_, err = s.handle(Finish{PlayerID: "alice", WinnerID: "alice", Moves: 3})
	s.ErrorIs(err, model.ErrSessionEnded)
	s.Len(s.recorder.recorded(), 1)
	s.Empty(s.sender.types("conn-alice"))
	s.Equal(model.PlayerID("bob"), s.session.Snapshot().Winner)
}

func (s *SessionSuite) TestFinishWithPersistenceFailureStillEnds() {
	s.recorder.err = errors.New("database unavailable")
	s.startPlaying(mediumRound)

	_, err := s.handle(Finish{PlayerID: "alice", WinnerID: "alice", Moves: 2})
	s.Require().NoError(err)

	s.Equal(model.SessionStateEnded, s.session.State())
	s.Equal(model.EventRoundWon, s.sender.last("conn-alice").Type)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ResultRecordFailures))
}

func (s *SessionSuite) TestFinishWithUnknownWinner() {
	s.startPlaying(mediumRound)

	_, err := s.handle(Finish{PlayerID: "alice", WinnerID: "mallory", Moves: 2})
	s.ErrorIs(err, model.ErrNotParticipant)
	s.Equal(model.SessionStatePlaying, s.session.State())
}

func (s *SessionSuite) TestSubmitAfterFinishIsIgnored() {
	s.startPlaying(mediumRound)
	_, _ = s.handle(Finish{PlayerID: "alice", WinnerID: "alice", Moves: 2})

	reply, err := s.submit("Chile", "Argentina", "Brazil")
	s.ErrorIs(err, model.ErrSessionEnded)
	s.Nil(reply)
}

// Disconnect and reconnect

func (s *SessionSuite) TestReconnectWithinGraceResumes() {
	s.startPlaying(mediumRound)

	s.disconnect(s.alice)
	s.Equal([]model.EventType{model.EventOpponentDisconnected}, s.sender.types("conn-bob"))
	s.True(s.session.Snapshot().Players[0].Reconnecting)

	s.clock.Advance(20 * time.Second)
	_, err := s.registry.BindConnection("alice", "conn-alice-2")
	s.Require().NoError(err)
	_, err = s.handle(Reconnect{PlayerID: "alice"})
	s.Require().NoError(err)

	s.Equal([]model.EventType{model.EventOpponentConnected, model.EventRoundResumed}, s.sender.types("conn-alice-2"))
	s.Equal([]model.EventType{
		model.EventOpponentDisconnected,
		model.EventOpponentReconnected,
		model.EventRoundResumed,
	}, s.sender.types("conn-bob"))

	s.clock.Advance(time.Minute)
	s.Equal(model.SessionStatePlaying, s.session.State())
	s.Zero(s.sender.count("conn-bob", model.EventOpponentLeft))
}

func (s *SessionSuite) TestGraceExpiryForfeitsOnce() {
	s.startPlaying(mediumRound)
	s.disconnect(s.alice)

	s.clock.Advance(29 * time.Second)
	s.Equal(model.SessionStatePlaying, s.session.State())

	s.clock.Advance(time.Second)
	s.Equal(model.SessionStateEnded, s.session.State())
	s.Equal(1, s.sender.count("conn-bob", model.EventOpponentLeft))

	s.clock.Advance(time.Hour)
	s.Equal(1, s.sender.count("conn-bob", model.EventOpponentLeft))
	s.Empty(s.recorder.recorded())
	s.Empty(s.session.Snapshot().Winner)
	s.True(s.session.Snapshot().Players[0].Vacated)
}

func (s *SessionSuite) TestDuplicateDisconnectKeepsSingleTimer() {
	s.startPlaying(mediumRound)
	s.disconnect(s.alice)
	pending := s.clock.PendingTimers()

	_, err := s.handle(Disconnect{PlayerID: "alice"})
	s.Require().NoError(err)

	s.Equal(pending, s.clock.PendingTimers())
	s.Equal(1, s.sender.count("conn-bob", model.EventOpponentDisconnected))
}

func (s *SessionSuite) TestBothDisconnectedDestroysSession() {
	s.startPlaying(mediumRound)
	s.disconnect(s.alice)
	s.disconnect(s.bob)

	_, err := s.registry.Session(s.session.ID())
	s.ErrorIs(err, model.ErrSessionNotFound)
	s.Zero(s.clock.PendingTimers())

	players, sessions := s.registry.Stats()
	s.Zero(players)
	s.Zero(sessions)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SessionsEnded.WithLabelValues(metrics.OutcomeAbandoned)))
}

func (s *SessionSuite) TestSettleStillFiresAfterQuickReconnect() {
	s.create(mediumRound)
	_, _ = s.handle(Reconnect{PlayerID: "alice"})
	_, _ = s.handle(Reconnect{PlayerID: "bob"})

	s.disconnect(s.alice)
	_, err := s.registry.BindConnection("alice", "conn-alice-2")
	s.Require().NoError(err)
	_, err = s.handle(Reconnect{PlayerID: "alice"})
	s.Require().NoError(err)

	s.clock.Advance(DefaultTiming().SettleDelay)
	s.Equal(model.SessionStatePlaying, s.session.State())
	s.Equal(model.EventRoundStarted, s.sender.last("conn-alice-2").Type)
}

func (s *SessionSuite) TestReconnectWhileSettlingDoesNotResume() {
	s.create(mediumRound)
	_, _ = s.handle(Reconnect{PlayerID: "alice"})
	_, _ = s.handle(Reconnect{PlayerID: "bob"})
	s.sender.reset()

	s.disconnect(s.alice)
	_, err := s.registry.BindConnection("alice", "conn-alice-2")
	s.Require().NoError(err)
	_, err = s.handle(Reconnect{PlayerID: "alice"})
	s.Require().NoError(err)

	s.Equal([]model.EventType{model.EventOpponentConnected}, s.sender.types("conn-alice-2"))
	s.Equal([]model.EventType{
		model.EventOpponentDisconnected,
		model.EventOpponentReconnected,
	}, s.sender.types("conn-bob"))

	s.clock.Advance(DefaultTiming().SettleDelay)
	s.Equal(model.SessionStatePlaying, s.session.State())
	s.Zero(s.sender.count("conn-alice-2", model.EventRoundResumed))
	s.Zero(s.sender.count("conn-bob", model.EventRoundResumed))
	s.Equal(model.EventRoundStarted, s.sender.last("conn-bob").Type)
}

func (s *SessionSuite) TestCancelledTimerCallbackIsNoop() {
	s.startPlaying(mediumRound)
	s.disconnect(s.alice)

	s.session.mu.Lock()
	stale := s.session.reconnect["alice"].gen
	s.session.cancelReconnect("alice")
	s.session.onReconnectExpired("alice", stale)
	state := s.session.state
	s.session.mu.Unlock()

	s.Equal(model.SessionStatePlaying, state)
	s.Zero(s.sender.count("conn-bob", model.EventOpponentLeft))
}

func (s *SessionSuite) TestRearmedTimerIgnoresOldGeneration() {
	s.startPlaying(mediumRound)
	s.disconnect(s.alice)

	s.session.mu.Lock()
	stale := s.session.reconnect["alice"].gen
	s.session.cancelReconnect("alice")
	s.session.armReconnect("alice")
	s.session.onReconnectExpired("alice", stale)
	_, stillPending := s.session.reconnect["alice"]
	s.session.mu.Unlock()

	s.True(stillPending)
	s.Equal(model.SessionStatePlaying, s.session.State())
}

// Leaving ended sessions

func (s *SessionSuite) TestLeaveAndDisconnectDestroyEndedSession() {
	s.startPlaying(mediumRound)
	_, _ = s.handle(Finish{PlayerID: "alice", WinnerID: "alice", Moves: 2})

	_, err := s.handle(Leave{PlayerID: "alice"})
	s.Require().NoError(err)
	_, err = s.registry.Session(s.session.ID())
	s.Require().NoError(err)
	s.Empty(s.alice.SessionID())

	_, ok := s.registry.ReleaseConnection("conn-bob")
	s.Require().True(ok)
	_, err = s.handle(Disconnect{PlayerID: "bob"})
	s.Require().NoError(err)

	_, err = s.registry.Session(s.session.ID())
	s.ErrorIs(err, model.ErrSessionNotFound)

	// Alice is still connected so she survives the session; Bob does not
	_, ok = s.registry.Player("alice")
	s.True(ok)
	_, ok = s.registry.Player("bob")
	s.False(ok)
}

func (s *SessionSuite) TestReconnectToEndedSession() {
	s.startPlaying(mediumRound)
	_, _ = s.handle(Finish{PlayerID: "alice", WinnerID: "alice", Moves: 2})

	_, err := s.handle(Reconnect{PlayerID: "bob"})
	s.ErrorIs(err, model.ErrSessionEnded)
}
