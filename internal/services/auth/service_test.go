package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/arenaengine/internal/dependencies/mocks"
	"github.com/mcoot/arenaengine/internal/model"
)

type ServiceSuite struct {
	suite.Suite
	clock   *mocks.MockClock
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	cfg := DefaultConfig()
	cfg.Secret = "test-secret"
	cfg.TokenTTL = time.Hour
	s.service = New(s.clock, cfg)
}

func (s *ServiceSuite) TestIssueThenVerify() {
	token, err := s.service.Issue("alice", "", map[string]any{"region": "eu"})
	s.Require().NoError(err)
	s.Equal(s.clock.Now().Add(time.Hour), token.ExpiresAt)

	identity, err := s.service.Verify(token.Value)
	s.Require().NoError(err)
	s.Equal(model.PlayerID("alice"), identity.PlayerID)
	s.Equal("eu", identity.Attributes["region"])
	s.False(identity.IsAdmin())
}

func (s *ServiceSuite) TestAdminRole() {
	token, err := s.service.Issue("ops", RoleAdmin, nil)
	s.Require().NoError(err)

	identity, err := s.service.Verify(token.Value)
	s.Require().NoError(err)
	s.True(identity.IsAdmin())
}

func (s *ServiceSuite) TestExpiredTokenFails() {
	token, _ := s.service.Issue("alice", "", nil)
	s.clock.Advance(2 * time.Hour)

	_, err := s.service.Verify(token.Value)
	s.ErrorIs(err, model.ErrAuthenticationFailed)
	s.Contains(err.Error(), "expired")
}

func (s *ServiceSuite) TestWrongSecretFails() {
	other := New(s.clock, Config{Secret: "other-secret"})
	token, _ := other.Issue("mallory", "", nil)

	_, err := s.service.Verify(token.Value)
	s.ErrorIs(err, model.ErrAuthenticationFailed)
	s.Equal("authentication-failed", model.CodeOf(err))
}

func (s *ServiceSuite) TestWrongIssuerFails() {
	other := New(s.clock, Config{Secret: "test-secret", Issuer: "someone-else"})
	token, _ := other.Issue("mallory", "", nil)

	_, err := s.service.Verify(token.Value)
	s.ErrorIs(err, model.ErrAuthenticationFailed)
}

func (s *ServiceSuite) TestUnsignedTokenFails() {
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    "arenaengine",
		Subject:   "mallory",
		ExpiresAt: jwt.NewNumericDate(s.clock.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	s.Require().NoError(err)

	_, err = s.service.Verify(unsigned)
	s.ErrorIs(err, model.ErrAuthenticationFailed)
}

func (s *ServiceSuite) TestGarbageAndEmptyTokensFail() {
	_, err := s.service.Verify("not-a-token")
	s.ErrorIs(err, model.ErrAuthenticationFailed)

	_, err = s.service.Verify("   ")
	s.ErrorIs(err, model.ErrAuthenticationFailed)
}

func (s *ServiceSuite) TestUnconfiguredServiceRejectsEverything() {
	svc := New(s.clock, DefaultConfig())

	_, err := svc.Issue("alice", "", nil)
	s.ErrorIs(err, ErrNotConfigured)

	token, _ := s.service.Issue("alice", "", nil)
	_, err = svc.Verify(token.Value)
	s.ErrorIs(err, model.ErrAuthenticationFailed)
}

func (s *ServiceSuite) TestIssueRequiresPlayerID() {
	_, err := s.service.Issue("  ", "", nil)
	s.Error(err)
}
