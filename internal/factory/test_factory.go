package factory

import (
	"time"

	"github.com/mcoot/arenaengine/internal/config"
	"github.com/mcoot/arenaengine/internal/dependencies/mocks"
	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/services/analysis"
	"github.com/mcoot/arenaengine/internal/storage/memory"
	"github.com/mcoot/arenaengine/internal/testutil"
)

// TestSecret signs tokens in test apps
const TestSecret = "arenaengine-test-secret"

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	Memory     *memory.Storage
}

// TestConfig returns the default configuration with a signing secret
func TestConfig() config.Config {
	cfg, err := config.LoadFromMap(map[string]string{"ARENA_JWT_SECRET": TestSecret})
	if err != nil {
		panic(err)
	}
	return cfg
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	return NewTestAppWithConfig(TestConfig())
}

// NewTestAppWithConfig is NewTestApp with a custom configuration
func NewTestAppWithConfig(cfg config.Config) *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	app, err := newWithDependencies(cfg, store, mockClock, mockRandom, analysis.Noop{}, testutil.NopLogger())
	if err != nil {
		panic(err)
	}

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		Memory:     store,
	}
}

// MustToken issues a token or panics
func (t *TestApp) MustToken(playerID, role string) string {
	token, err := t.Auth.Issue(model.PlayerID(playerID), role, nil)
	if err != nil {
		panic(err)
	}
	return token.Value
}
