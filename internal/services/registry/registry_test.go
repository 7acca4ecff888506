package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenoracle/pricecore/internal/adapters/outbound/memory"
	"github.com/tokenoracle/pricecore/internal/domain/entity"
	"github.com/tokenoracle/pricecore/internal/ports/outbound"
)

// failingQueue always fails Enqueue, to exercise the soft-fail path in
// enqueueLocked without standing up a real broker.
type failingQueue struct {
	*memory.Queue
}

func (f *failingQueue) Enqueue(ctx context.Context, job *entity.BackfillJob, opts outbound.EnqueueOptions) (string, error) {
	return "", &entity.UnavailableError{Subsystem: "queue"}
}

func TestRegistry_Create(t *testing.T) {
	r, err := New(Config{}, memory.NewQueue())
	require.NoError(t, err)

	record, err := r.Create(context.Background(), "usdc", "ethereum", "24h", true)
	require.NoError(t, err)
	assert.Equal(t, "USDC", record.Token)
	assert.True(t, record.Enabled)
	assert.NotNil(t, record.LastRun, "enabling on create should enqueue immediately")
}

func TestRegistry_Create_AlreadyExistsIsCaseInsensitive(t *testing.T) {
	r, err := New(Config{}, memory.NewQueue())
	require.NoError(t, err)

	_, err = r.Create(context.Background(), "USDC", "ethereum", "24h", true)
	require.NoError(t, err)

	_, err = r.Create(context.Background(), "usdc", "ETHEREUM", "24h", false)
	require.Error(t, err)
	var exists *entity.AlreadyExistsError
	assert.ErrorAs(t, err, &exists)
}

func TestRegistry_Create_InvalidNetwork(t *testing.T) {
	r, err := New(Config{}, memory.NewQueue())
	require.NoError(t, err)

	_, err = r.Create(context.Background(), "usdc", "moonbeam", "24h", true)
	require.Error(t, err)
	var invalid *entity.InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

func TestRegistry_Create_DisabledDoesNotEnqueue(t *testing.T) {
	r, err := New(Config{}, memory.NewQueue())
	require.NoError(t, err)

	record, err := r.Create(context.Background(), "usdc", "ethereum", "24h", false)
	require.NoError(t, err)
	assert.Nil(t, record.LastRun)
}

func TestRegistry_UpdateReEnqueuesOnEnable(t *testing.T) {
	r, err := New(Config{}, memory.NewQueue())
	require.NoError(t, err)

	record, err := r.Create(context.Background(), "usdc", "ethereum", "24h", false)
	require.NoError(t, err)
	assert.Nil(t, record.LastRun)

	updated, err := r.Update(context.Background(), record.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.Enabled)
	assert.NotNil(t, updated.LastRun, "enabling should trigger an enqueue")
}

func TestRegistry_Update_NotFound(t *testing.T) {
	r, err := New(Config{}, memory.NewQueue())
	require.NoError(t, err)

	_, err = r.Update(context.Background(), "does-not-exist", true)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestRegistry_RunNow_DisabledReturnsErrDisabled(t *testing.T) {
	r, err := New(Config{}, memory.NewQueue())
	require.NoError(t, err)

	record, err := r.Create(context.Background(), "usdc", "ethereum", "24h", false)
	require.NoError(t, err)

	_, err = r.RunNow(context.Background(), record.ID)
	assert.ErrorIs(t, err, entity.ErrDisabled)
}

func TestRegistry_RunNow_NotFound(t *testing.T) {
	r, err := New(Config{}, memory.NewQueue())
	require.NoError(t, err)

	_, err = r.RunNow(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestRegistry_RunNow_Enabled(t *testing.T) {
	r, err := New(Config{}, memory.NewQueue())
	require.NoError(t, err)

	record, err := r.Create(context.Background(), "usdc", "ethereum", "24h", true)
	require.NoError(t, err)

	jobID, err := r.RunNow(context.Background(), record.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)
}

func TestRegistry_QueueUnavailable_ScheduleStillRecorded(t *testing.T) {
	r, err := New(Config{}, &failingQueue{Queue: memory.NewQueue()})
	require.NoError(t, err)

	record, err := r.Create(context.Background(), "usdc", "ethereum", "24h", true)
	require.NoError(t, err, "a queue failure during create must not fail the schedule write")
	assert.Nil(t, record.LastRun, "LastRun should not be stamped when enqueue failed")

	got, err := r.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
}

func TestRegistry_Delete(t *testing.T) {
	r, err := New(Config{}, memory.NewQueue())
	require.NoError(t, err)

	record, err := r.Create(context.Background(), "usdc", "ethereum", "24h", false)
	require.NoError(t, err)

	require.NoError(t, r.Delete(context.Background(), record.ID))

	_, err = r.Get(context.Background(), record.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestRegistry_List(t *testing.T) {
	r, err := New(Config{}, memory.NewQueue())
	require.NoError(t, err)

	_, err = r.Create(context.Background(), "usdc", "ethereum", "24h", true)
	require.NoError(t, err)
	_, err = r.Create(context.Background(), "dai", "polygon", "24h", false)
	require.NoError(t, err)

	listing, err := r.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, listing.Total)
	assert.Equal(t, 1, listing.Active)
}
