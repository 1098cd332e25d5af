package factory

import (
	"time"

	"github.com/mcoot/georally/internal/dependencies/mocks"
	"github.com/mcoot/georally/internal/services/geo"
	"github.com/mcoot/georally/internal/services/session"
	"github.com/mcoot/georally/internal/storage/memory"
	"github.com/mcoot/georally/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	Memory     *memory.Storage
}

// NewTestApp creates an App configured for testing with mocked dependencies.
// It uses the embedded country dataset.
func NewTestApp() *TestApp {
	graph, err := geo.Default()
	if err != nil {
		panic(err)
	}
	return NewTestAppWithGraph(graph)
}

// NewTestAppWithGraph is NewTestApp over a custom country graph
func NewTestAppWithGraph(graph *geo.Graph) *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	app := newWithDependencies(store, graph, mockClock, mockRandom, session.DefaultTiming(), nil, testutil.NopLogger())

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		Memory:     store,
	}
}
