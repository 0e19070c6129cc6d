package survey

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/survey-caller/pkg/dataset"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const pendingDataset = "Phone,Name,Answer,Status\n" +
	"010-1111-1111,Kim,,Pending\n" +
	"010-2222-2222,Lee,,Pending\n" +
	"010-3333-3333,Park,,Pending\n"

type fakeRooms struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (f *fakeRooms) DeleteRoom(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return f.err
}

func (f *fakeRooms) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func newCSVStore(t *testing.T, content string) (*dataset.CSVStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "survey_data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	s, err := dataset.NewCSVStore(path)
	require.NoError(t, err)
	return s, path
}

func callAt(row int) CallContext {
	cc := DefaultCallContext()
	cc.PhoneNumber = "010-2222-2222"
	cc.RowIndex = row
	return cc
}

func TestCommitHandler_RecordsAnswerAndClosesRoom(t *testing.T) {
	store, _ := newCSVStore(t, pendingDataset)
	rooms := &fakeRooms{}
	h := NewCommitHandler(callAt(2), "survey-room-a", store, rooms, WithGracePeriod(0))
	require.Equal(t, StateAwaitingAnswer, h.State())

	res, err := h.Commit(context.Background(), "커피")
	require.NoError(t, err)
	require.Equal(t, MessageCompleted, res.Message)
	require.True(t, res.Recorded)
	require.Equal(t, StateTerminated, h.State())
	require.Equal(t, []string{"survey-room-a"}, rooms.calls())

	select {
	case <-h.Done():
	default:
		t.Fatal("done channel not closed")
	}

	tbl, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"010-1111-1111", "Kim", "", "Pending"}, tbl.Rows[0])
	require.Equal(t, []string{"010-2222-2222", "Lee", "커피", "Completed"}, tbl.Rows[1])
	require.Equal(t, []string{"010-3333-3333", "Park", "", "Pending"}, tbl.Rows[2])
}

func TestCommitHandler_InvalidRowLeavesCallOpen(t *testing.T) {
	content := "Answer,Status\n,Pending\n"
	store, path := newCSVStore(t, content)
	rooms := &fakeRooms{}
	h := NewCommitHandler(callAt(5), "survey-room-b", store, rooms, WithGracePeriod(0))

	res, err := h.Commit(context.Background(), "커피")
	require.Error(t, err)
	require.True(t, errors.Is(err, dataset.ErrRowOutOfRange))
	require.Equal(t, MessageCommitFailed, res.Message)
	require.False(t, res.Recorded)
	require.Equal(t, StateAwaitingAnswer, h.State())
	require.Empty(t, rooms.calls())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, content, string(raw))
}

func TestCommitHandler_TeardownFailureKeepsAnswer(t *testing.T) {
	store, _ := newCSVStore(t, pendingDataset)
	rooms := &fakeRooms{err: errors.New("connection reset by peer")}
	h := NewCommitHandler(callAt(1), "survey-room-d", store, rooms, WithGracePeriod(0))

	res, err := h.Commit(context.Background(), "바이든")
	require.NoError(t, err)
	require.Equal(t, MessageCompleted, res.Message)
	require.Equal(t, StateTerminated, h.State())
	require.Len(t, rooms.calls(), 1)

	tbl, err := store.Load(context.Background())
	require.NoError(t, err)
	answer, err := tbl.Get(1, dataset.ColumnAnswer)
	require.NoError(t, err)
	require.Equal(t, "바이든", answer)
	status, err := tbl.Get(1, dataset.ColumnStatus)
	require.NoError(t, err)
	require.Equal(t, dataset.StatusCompleted, status)
}

func TestCommitHandler_NoRoomService(t *testing.T) {
	store, _ := newCSVStore(t, pendingDataset)
	h := NewCommitHandler(callAt(3), "survey-room", store, nil, WithGracePeriod(0))

	res, err := h.Commit(context.Background(), "차")
	require.NoError(t, err)
	require.Equal(t, MessageCompleted, res.Message)
	require.Equal(t, StateTerminated, h.State())
}

func TestCommitHandler_SecondCommitOverwritesByDefault(t *testing.T) {
	store, _ := newCSVStore(t, pendingDataset)
	rooms := &fakeRooms{}
	h := NewCommitHandler(callAt(2), "survey-room", store, rooms, WithGracePeriod(0))
	ctx := context.Background()

	_, err := h.Commit(ctx, "바이든")
	require.NoError(t, err)
	res, err := h.Commit(ctx, "커피")
	require.NoError(t, err)
	require.Equal(t, MessageCompleted, res.Message)

	tbl, err := store.Load(ctx)
	require.NoError(t, err)
	answer, err := tbl.Get(2, dataset.ColumnAnswer)
	require.NoError(t, err)
	require.Equal(t, "커피", answer)
	require.Len(t, rooms.calls(), 2)
}

func TestCommitHandler_RejectPolicyKeepsFirstAnswer(t *testing.T) {
	store, _ := newCSVStore(t, pendingDataset)
	rooms := &fakeRooms{}
	h := NewCommitHandler(callAt(2), "survey-room", store, rooms,
		WithGracePeriod(0), WithDoubleCommitPolicy(RejectPolicy))
	ctx := context.Background()

	_, err := h.Commit(ctx, "바이든")
	require.NoError(t, err)
	res, err := h.Commit(ctx, "커피")
	require.NoError(t, err)
	require.Equal(t, MessageAlreadyRecorded, res.Message)
	require.False(t, res.Recorded)

	tbl, err := store.Load(ctx)
	require.NoError(t, err)
	answer, err := tbl.Get(2, dataset.ColumnAnswer)
	require.NoError(t, err)
	require.Equal(t, "바이든", answer)
	require.Len(t, rooms.calls(), 1)
}

func TestCommitHandler_GracePeriodPrecedesTeardown(t *testing.T) {
	store, _ := newCSVStore(t, pendingDataset)
	rooms := &fakeRooms{}
	h := NewCommitHandler(callAt(1), "survey-room", store, rooms, WithGracePeriod(50*time.Millisecond))

	start := time.Now()
	_, err := h.Commit(context.Background(), "커피")
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	require.Len(t, rooms.calls(), 1)
}

func TestCommitHandler_CancelledContextStillTearsDown(t *testing.T) {
	store, _ := newCSVStore(t, pendingDataset)
	rooms := &fakeRooms{}
	h := NewCommitHandler(callAt(1), "survey-room", store, rooms, WithGracePeriod(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	res, err := h.Commit(ctx, "커피")
	require.NoError(t, err)
	require.Equal(t, MessageCompleted, res.Message)
	require.Equal(t, []string{"survey-room"}, rooms.calls())
}

func TestParseDoubleCommitPolicy(t *testing.T) {
	p, err := ParseDoubleCommitPolicy("")
	require.NoError(t, err)
	require.Equal(t, OverwritePolicy, p)

	p, err = ParseDoubleCommitPolicy("reject")
	require.NoError(t, err)
	require.Equal(t, RejectPolicy, p)

	_, err = ParseDoubleCommitPolicy("ignore")
	require.Error(t, err)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "awaiting_answer", StateAwaitingAnswer.String())
	require.Equal(t, "committing", StateCommitting.String())
	require.Equal(t, "closing", StateClosing.String())
	require.Equal(t, "terminated", StateTerminated.String())
	require.Equal(t, "unknown", State(42).String())
}
