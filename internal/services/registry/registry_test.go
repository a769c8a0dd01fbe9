package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/arenaengine/internal/dependencies/mocks"
	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/testutil"
)

type RegistrySuite struct {
	suite.Suite
	clock    *mocks.MockClock
	registry *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.registry = New(s.clock, testutil.NopLogger())
}

func (s *RegistrySuite) TestRegisterAndLookup() {
	conn := testutil.NewFakeConn("c1")
	s.Nil(s.registry.Register("p1", conn))

	got, ok := s.registry.Lookup("p1")
	s.Require().True(ok)
	s.Same(conn, got)

	state, ok := s.registry.State("p1")
	s.Require().True(ok)
	s.True(state.Authenticated)
	s.Equal(s.clock.Now(), state.JoinedAt)
}

func (s *RegistrySuite) TestLookupUnknown() {
	_, ok := s.registry.Lookup("nobody")
	s.False(ok)
}

func (s *RegistrySuite) TestSecondRegistrationEvictsFirst() {
	first := testutil.NewFakeConn("c1")
	second := testutil.NewFakeConn("c2")

	s.Nil(s.registry.Register("p1", first))
	evicted := s.registry.Register("p1", second)

	s.Require().NotNil(evicted)
	s.Equal("c1", evicted.ID())
	got, _ := s.registry.Lookup("p1")
	s.Same(second, got)
	s.Equal(1, s.registry.Connected())
}

func (s *RegistrySuite) TestReRegisteringSameConnectionIsNotAnEviction() {
	conn := testutil.NewFakeConn("c1")
	s.registry.Register("p1", conn)
	s.Nil(s.registry.Register("p1", conn))
}

func (s *RegistrySuite) TestDetachOnlyAffectsLiveConnection() {
	s.registry.Register("p1", testutil.NewFakeConn("c1"))
	s.registry.Register("p1", testutil.NewFakeConn("c2"))

	// The evicted connection's disconnect must not detach its replacement
	s.False(s.registry.Detach("p1", "c1"))
	_, ok := s.registry.Lookup("p1")
	s.True(ok)

	s.True(s.registry.Detach("p1", "c2"))
	_, ok = s.registry.Lookup("p1")
	s.False(ok)

	state, ok := s.registry.State("p1")
	s.Require().True(ok)
	s.NotNil(state.DetachedAt)
}

func (s *RegistrySuite) TestReconnectKeepsState() {
	s.registry.Register("p1", testutil.NewFakeConn("c1"))
	s.registry.SetStats("p1", model.PlayerStats{GamesPlayed: 3})
	s.registry.Detach("p1", "c1")

	s.Nil(s.registry.Register("p1", testutil.NewFakeConn("c2")))
	state, _ := s.registry.State("p1")
	s.Nil(state.DetachedAt)
	s.Require().NotNil(state.Stats)
	s.Equal(3, state.Stats.GamesPlayed)
}

func (s *RegistrySuite) TestUnregisterIsIdempotent() {
	s.registry.Register("p1", testutil.NewFakeConn("c1"))
	s.registry.Unregister("p1")
	s.registry.Unregister("p1")

	_, ok := s.registry.State("p1")
	s.False(ok)
	s.Zero(s.registry.Len())
}

func (s *RegistrySuite) TestCurrentSession() {
	s.registry.Register("p1", testutil.NewFakeConn("c1"))
	s.Nil(s.registry.CurrentSession("p1"))

	id := model.SessionID("S1")
	s.registry.SetCurrentSession("p1", &id)
	s.Equal(&id, s.registry.CurrentSession("p1"))

	// Clearing a different session leaves the current one alone
	s.registry.ClearSession("p1", "S2")
	s.NotNil(s.registry.CurrentSession("p1"))

	s.registry.ClearSession("p1", "S1")
	s.Nil(s.registry.CurrentSession("p1"))
}

func (s *RegistrySuite) TestAttributesAreCopied() {
	s.registry.Register("p1", testutil.NewFakeConn("c1"))
	s.registry.SetAttribute("p1", "health", 100)

	state, _ := s.registry.State("p1")
	state.Attributes["health"] = 0

	again, _ := s.registry.State("p1")
	s.Equal(100, again.Attributes["health"])
}

func (s *RegistrySuite) TestTouchUpdatesLastAction() {
	s.registry.Register("p1", testutil.NewFakeConn("c1"))
	s.clock.Advance(time.Minute)
	s.registry.Touch("p1")

	state, _ := s.registry.State("p1")
	s.Equal(s.clock.Now(), state.LastActionAt)
}

func (s *RegistrySuite) TestPurgeDetached() {
	s.registry.Register("p1", testutil.NewFakeConn("c1"))
	s.registry.Register("p2", testutil.NewFakeConn("c2"))
	s.registry.Register("p3", testutil.NewFakeConn("c3"))
	s.registry.Detach("p1", "c1")
	s.clock.Advance(time.Minute)
	s.registry.Detach("p2", "c2")

	purged := s.registry.PurgeDetached(s.clock.Now().Add(-30 * time.Second))
	s.Equal([]model.PlayerID{"p1"}, purged)
	s.Equal(2, s.registry.Len())
	s.Equal(1, s.registry.Connected())
}
