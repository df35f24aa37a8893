package perception

import (
	"testing"

	"go.uber.org/goleak"
)

// The Gemini client runs retry loops with backoff timers; verify none
// of them leak past the tests.
func TestMain(m *testing.M) {
	// go.opencensus.io (a transitive dependency of the genai client)
	// starts a stats worker goroutine in package init that can never
	// be stopped; it is not a leak from the code under test.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}
