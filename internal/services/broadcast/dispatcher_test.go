package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/arenaengine/internal/dependencies/mocks"
	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/protocol"
	"github.com/mcoot/arenaengine/internal/services/registry"
	"github.com/mcoot/arenaengine/internal/testutil"
)

type DispatcherSuite struct {
	suite.Suite
	registry   *registry.Registry
	dispatcher *Dispatcher
	p1, p2, p3 *testutil.FakeConn
	now        time.Time
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.registry = registry.New(mocks.NewMockClock(s.now), testutil.NopLogger())
	s.dispatcher = New(s.registry, nil, testutil.NopLogger())

	s.p1 = testutil.NewFakeConn("c1")
	s.p2 = testutil.NewFakeConn("c2")
	s.p3 = testutil.NewFakeConn("c3")
	s.registry.Register("p1", s.p1)
	s.registry.Register("p2", s.p2)
	s.registry.Register("p3", s.p3)
}

func (s *DispatcherSuite) TestBroadcastReachesEveryone() {
	delivery := s.dispatcher.Broadcast([]model.PlayerID{"p1", "p2", "p3"}, protocol.HeartbeatAck(s.now))

	s.Equal(Delivery{Delivered: 3}, delivery)
	for _, conn := range []*testutil.FakeConn{s.p1, s.p2, s.p3} {
		s.Equal([]protocol.MessageType{protocol.TypeHeartbeatAck}, conn.SentTypes())
	}
}

func (s *DispatcherSuite) TestBroadcastHonoursExclusions() {
	env := protocol.PlayerJoined("S1", "p1", 3, s.now)
	delivery := s.dispatcher.Broadcast([]model.PlayerID{"p1", "p2", "p3"}, env, "p1")

	s.Equal(2, delivery.Delivered)
	s.Empty(s.p1.Sent())
	s.Len(s.p2.Sent(), 1)
}

func (s *DispatcherSuite) TestUnreachableRecipientsAreSkipped() {
	s.registry.Detach("p2", "c2")

	delivery := s.dispatcher.Broadcast([]model.PlayerID{"p1", "p2", "ghost"}, protocol.HeartbeatAck(s.now))
	s.Equal(Delivery{Delivered: 1, Skipped: 2}, delivery)
}

func (s *DispatcherSuite) TestClosedConnectionCountsAsFailed() {
	s.p3.Close("gone")

	delivery := s.dispatcher.Broadcast([]model.PlayerID{"p1", "p3"}, protocol.HeartbeatAck(s.now))
	s.Equal(Delivery{Delivered: 1, Failed: 1}, delivery)
}

func (s *DispatcherSuite) TestOrderingIsPreservedPerRecipient() {
	roster := []model.PlayerID{"p1", "p2"}
	s.dispatcher.Broadcast(roster, protocol.PlayerJoined("S1", "p2", 2, s.now))
	s.dispatcher.Broadcast(roster, protocol.GameStarted(model.SessionSnapshot{ID: "S1"}, s.now))
	s.dispatcher.Broadcast(roster, protocol.GameEnded(model.SessionResult{SessionID: "S1"}, s.now))

	want := []protocol.MessageType{protocol.TypePlayerJoined, protocol.TypeGameStarted, protocol.TypeGameEnded}
	s.Equal(want, s.p1.SentTypes())
	s.Equal(want, s.p2.SentTypes())
}

func (s *DispatcherSuite) TestSendTo() {
	s.True(s.dispatcher.SendTo("p1", protocol.HeartbeatAck(s.now)))
	s.False(s.dispatcher.SendTo("ghost", protocol.HeartbeatAck(s.now)))
}
