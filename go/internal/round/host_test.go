package round

import (
	"testing"
	"time"

	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Host_Attach_Dedupes_Per_Seat(t *testing.T) {
	// Arrange
	f := newFixture(t, models.SessionStatusActive, 0, "A", "B")
	host := NewHost(f.store, f.bank, f.ledger, f.clock, testConfig())
	defer host.Shutdown()

	// Act
	first := host.Attach(f.session.ID, "A")
	second := host.Attach(f.session.ID, "A")
	other := host.Attach(f.session.ID, "B")

	// Assert
	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, host.Running())

	found, ok := host.Lookup(f.session.ID, "B")
	require.True(t, ok)
	assert.Same(t, other, found)
}

func Test_Host_Detach_Stops_Coordinator(t *testing.T) {
	f := newFixture(t, models.SessionStatusActive, 0, "A", "B")
	host := NewHost(f.store, f.bank, f.ledger, f.clock, testConfig())
	defer host.Shutdown()

	host.Attach(f.session.ID, "A")
	f.clock.BlockUntil(1)

	host.Detach(f.session.ID, "A")

	assert.Equal(t, 0, host.Running())
	_, ok := host.Lookup(f.session.ID, "A")
	assert.False(t, ok)
}

func Test_Host_Forgets_Coordinator_After_Match(t *testing.T) {
	f := newFixture(t, models.SessionStatusFinished, 4, "A", "B")
	host := NewHost(f.store, f.bank, f.ledger, f.clock, testConfig())
	defer host.Shutdown()

	coord := host.Attach(f.session.ID, "A")

	select {
	case <-coord.Done():
	case <-time.After(time.Second):
		t.Fatal("coordinator did not finish")
	}
	require.Eventually(t, func() bool { return host.Running() == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, StateMatchComplete, coord.Snapshot().State)
}

func Test_Host_Attach_Replaces_Exited_Coordinator(t *testing.T) {
	f := newFixture(t, models.SessionStatusFinished, 4, "A", "B")
	host := NewHost(f.store, f.bank, f.ledger, f.clock, testConfig())
	defer host.Shutdown()

	first := host.Attach(f.session.ID, "A")
	<-first.Done()

	second := host.Attach(f.session.ID, "A")

	assert.NotSame(t, first, second)
	select {
	case <-second.Done():
	case <-time.After(time.Second):
		t.Fatal("replacement coordinator did not finish")
	}
}
