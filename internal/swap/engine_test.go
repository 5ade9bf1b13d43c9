package swap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotswap-backend/internal/apperr"
	"slotswap-backend/internal/db/dbtest"
	"slotswap-backend/internal/model"
	"slotswap-backend/internal/notification"
	"slotswap-backend/internal/notification/notificationtest"
	"slotswap-backend/internal/store"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

type fixture struct {
	store  store.Store
	engine *Engine
	rec    *notificationtest.Recorder
	users  map[string]model.User
}

func setup(t *testing.T, names ...string) *fixture {
	t.Helper()
	return setupWithStore(t, store.NewGormStore(dbtest.Open(t)), names...)
}

func setupWithStore(t *testing.T, s store.Store, names ...string) *fixture {
	t.Helper()
	rec := &notificationtest.Recorder{}
	f := &fixture{store: s, engine: NewEngine(s, rec), rec: rec, users: map[string]model.User{}}
	for _, n := range names {
		u := model.User{Name: n, Email: n + "@example.com", PasswordHash: "x"}
		require.NoError(t, s.CreateUser(context.Background(), &u))
		f.users[n] = u
	}
	return f
}

func (f *fixture) uid(name string) int64 { return f.users[name].ID }

func (f *fixture) slot(t *testing.T, owner, title string, start time.Time, status model.EventStatus) model.Event {
	t.Helper()
	e := model.Event{UserID: f.uid(owner), Title: title, StartTime: start, EndTime: start.Add(30 * time.Minute), Status: status}
	require.NoError(t, f.store.CreateEvent(context.Background(), &e))
	return e
}

func (f *fixture) reload(t *testing.T, id int64) model.Event {
	t.Helper()
	e, err := f.store.GetEvent(context.Background(), id)
	require.NoError(t, err)
	return *e
}

// assertInvariant checks that SWAP_PENDING slots and PENDING requests match one to one.
func (f *fixture) assertInvariant(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	pendingSlots, err := f.store.ListEventsByStatus(ctx, model.StatusSwapPending)
	require.NoError(t, err)
	pendingReqs, err := f.store.ListSwapRequestsByStatus(ctx, model.SwapPending)
	require.NoError(t, err)

	refs := map[int64]int{}
	for _, r := range pendingReqs {
		refs[r.RequesterSlotID]++
		refs[r.RecipientSlotID]++
	}
	for _, s := range pendingSlots {
		assert.Equal(t, 1, refs[s.ID], "slot %d is SWAP_PENDING", s.ID)
		delete(refs, s.ID)
	}
	assert.Empty(t, refs, "pending requests reference slots that are not SWAP_PENDING")
}

func TestScenarioAccept(t *testing.T) {
	f := setup(t, "A", "B")
	ctx := context.Background()
	standup := f.slot(t, "A", "Standup", at(9, 0), model.StatusSwappable)
	syncSlot := f.slot(t, "B", "Sync", at(10, 0), model.StatusSwappable)

	req, err := f.engine.RequestSwap(ctx, f.uid("B"), syncSlot.ID, standup.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SwapPending, req.Status)
	assert.Equal(t, f.uid("A"), req.RecipientID)
	require.NotNil(t, req.Requester)
	require.NotNil(t, req.RecipientSlot)
	assert.Equal(t, "Standup", req.RecipientSlot.Title)
	assert.Equal(t, model.StatusSwapPending, f.reload(t, standup.ID).Status)
	assert.Equal(t, model.StatusSwapPending, f.reload(t, syncSlot.ID).Status)
	f.assertInvariant(t)

	d, ok := f.rec.Last()
	require.True(t, ok)
	assert.Equal(t, f.uid("A"), d.UserID)
	assert.Equal(t, notification.SwapRequestReceived, d.Event)
	assert.Equal(t, "B wants to swap slots with you", d.Payload.(Payload).Message)

	res, err := f.engine.RespondToSwap(ctx, f.uid("A"), req.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.SwapAccepted, res.SwapRequest.Status)
	assert.Len(t, res.UpdatedEvents, 2)

	gotStandup, gotSync := f.reload(t, standup.ID), f.reload(t, syncSlot.ID)
	assert.Equal(t, f.uid("B"), gotStandup.UserID)
	assert.Equal(t, model.StatusBusy, gotStandup.Status)
	assert.Equal(t, f.uid("A"), gotSync.UserID)
	assert.Equal(t, model.StatusBusy, gotSync.Status)
	f.assertInvariant(t)

	d, _ = f.rec.Last()
	assert.Equal(t, f.uid("B"), d.UserID)
	assert.Equal(t, notification.SwapRequestAccepted, d.Event)
	assert.Equal(t, "A accepted your swap request", d.Payload.(Payload).Message)
	assert.Len(t, d.Payload.(Payload).Events, 2)

	// Terminal: a second answer changes nothing.
	_, err = f.engine.RespondToSwap(ctx, f.uid("A"), req.ID, false)
	require.True(t, apperr.Is(err, apperr.Conflict))
	assert.Contains(t, err.Error(), "already been accepted")
	assert.Equal(t, f.uid("B"), f.reload(t, standup.ID).UserID)
	assert.Equal(t, model.StatusBusy, f.reload(t, syncSlot.ID).Status)
}

func TestScenarioReject(t *testing.T) {
	f := setup(t, "A", "B")
	ctx := context.Background()
	standup := f.slot(t, "A", "Standup", at(9, 0), model.StatusSwappable)
	syncSlot := f.slot(t, "B", "Sync", at(10, 0), model.StatusSwappable)

	req, err := f.engine.RequestSwap(ctx, f.uid("B"), syncSlot.ID, standup.ID)
	require.NoError(t, err)

	res, err := f.engine.RespondToSwap(ctx, f.uid("A"), req.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.SwapRejected, res.SwapRequest.Status)
	assert.Empty(t, res.UpdatedEvents)

	gotStandup, gotSync := f.reload(t, standup.ID), f.reload(t, syncSlot.ID)
	assert.Equal(t, f.uid("A"), gotStandup.UserID)
	assert.Equal(t, model.StatusSwappable, gotStandup.Status)
	assert.Equal(t, f.uid("B"), gotSync.UserID)
	assert.Equal(t, model.StatusSwappable, gotSync.Status)
	f.assertInvariant(t)

	d, _ := f.rec.Last()
	assert.Equal(t, notification.SwapRequestRejected, d.Event)
	assert.Equal(t, "A rejected your swap request", d.Payload.(Payload).Message)

	_, err = f.engine.RespondToSwap(ctx, f.uid("A"), req.ID, true)
	require.True(t, apperr.Is(err, apperr.Conflict))
	assert.Contains(t, err.Error(), "already been rejected")
	assert.Equal(t, f.uid("A"), f.reload(t, standup.ID).UserID)

	// Rejected slots can be offered again.
	_, err = f.engine.RequestSwap(ctx, f.uid("B"), syncSlot.ID, standup.ID)
	assert.NoError(t, err)
	f.assertInvariant(t)
}

func TestRequestSwap_PendingSlotIsExclusive(t *testing.T) {
	f := setup(t, "A", "B", "C")
	ctx := context.Background()
	a := f.slot(t, "A", "a", at(9, 0), model.StatusSwappable)
	b := f.slot(t, "B", "b", at(10, 0), model.StatusSwappable)
	c := f.slot(t, "C", "c", at(11, 0), model.StatusSwappable)

	_, err := f.engine.RequestSwap(ctx, f.uid("A"), a.ID, b.ID)
	require.NoError(t, err)

	_, err = f.engine.RequestSwap(ctx, f.uid("B"), b.ID, c.ID)
	assert.True(t, apperr.Is(err, apperr.Conflict), "B's slot is pending: %v", err)
	_, err = f.engine.RequestSwap(ctx, f.uid("C"), c.ID, a.ID)
	assert.True(t, apperr.Is(err, apperr.Conflict), "A's slot is pending: %v", err)

	assert.Equal(t, model.StatusSwappable, f.reload(t, c.ID).Status)
	f.assertInvariant(t)
}

func TestRequestSwap_ClaimBlocksEvenIfStatusDrifts(t *testing.T) {
	f := setup(t, "A", "B", "C")
	ctx := context.Background()
	a := f.slot(t, "A", "a", at(9, 0), model.StatusSwappable)
	b := f.slot(t, "B", "b", at(10, 0), model.StatusSwappable)
	c := f.slot(t, "C", "c", at(11, 0), model.StatusSwappable)

	_, err := f.engine.RequestSwap(ctx, f.uid("A"), a.ID, b.ID)
	require.NoError(t, err)

	// Force b back to SWAPPABLE behind the engine's back: the pending request
	// and the claim still protect it.
	require.NoError(t, f.store.DB().Model(&model.Event{}).Where("id = ?", b.ID).
		Update("status", model.StatusSwappable).Error)

	_, err = f.engine.RequestSwap(ctx, f.uid("C"), c.ID, b.ID)
	assert.True(t, apperr.Is(err, apperr.Conflict))
	assert.Contains(t, err.Error(), "pending swap request")
	assert.Equal(t, model.StatusSwappable, f.reload(t, c.ID).Status)
}

func TestRequestSwap_Validation(t *testing.T) {
	f := setup(t, "A", "B")
	ctx := context.Background()
	a := f.slot(t, "A", "a", at(9, 0), model.StatusSwappable)
	a2 := f.slot(t, "A", "a2", at(12, 0), model.StatusSwappable)
	aBusy := f.slot(t, "A", "busy", at(13, 0), model.StatusBusy)
	b := f.slot(t, "B", "b", at(10, 0), model.StatusSwappable)
	bBusy := f.slot(t, "B", "b busy", at(11, 0), model.StatusBusy)

	testCases := []struct {
		name        string
		requester   string
		mine, their int64
		kind        apperr.Kind
	}{
		{"same slot", "A", a.ID, a.ID, apperr.Conflict},
		{"non-positive id", "A", 0, b.ID, apperr.Validation},
		{"my slot missing", "A", 999, b.ID, apperr.NotFound},
		{"their slot missing", "A", a.ID, 999, apperr.NotFound},
		{"not my slot", "A", b.ID, a.ID, apperr.Authorization},
		{"my slot busy", "A", aBusy.ID, b.ID, apperr.Conflict},
		{"their slot is mine", "A", a.ID, a2.ID, apperr.Conflict},
		{"their slot busy", "A", a.ID, bBusy.ID, apperr.Conflict},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.RequestSwap(ctx, f.uid(tc.requester), tc.mine, tc.their)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err), "got %v", err)
		})
	}

	assert.Empty(t, f.rec.All())
	f.assertInvariant(t)
}

func TestRespondToSwap_Authorization(t *testing.T) {
	f := setup(t, "A", "B", "C")
	ctx := context.Background()
	a := f.slot(t, "A", "a", at(9, 0), model.StatusSwappable)
	b := f.slot(t, "B", "b", at(10, 0), model.StatusSwappable)

	req, err := f.engine.RequestSwap(ctx, f.uid("A"), a.ID, b.ID)
	require.NoError(t, err)

	_, err = f.engine.RespondToSwap(ctx, f.uid("A"), req.ID, true)
	assert.True(t, apperr.Is(err, apperr.Authorization), "requester cannot answer")
	_, err = f.engine.RespondToSwap(ctx, f.uid("C"), req.ID, true)
	assert.True(t, apperr.Is(err, apperr.Authorization))
	_, err = f.engine.RespondToSwap(ctx, f.uid("B"), 12345, true)
	assert.True(t, apperr.Is(err, apperr.NotFound))

	assert.Equal(t, model.StatusSwapPending, f.reload(t, a.ID).Status)
	f.assertInvariant(t)
}

func TestRequestSwap_ConcurrentRequestsForOneSlot(t *testing.T) {
	f := setup(t, "A", "B", "C")
	ctx := context.Background()
	target := f.slot(t, "A", "target", at(9, 0), model.StatusSwappable)
	b := f.slot(t, "B", "b", at(10, 0), model.StatusSwappable)
	c := f.slot(t, "C", "c", at(11, 0), model.StatusSwappable)

	type attempt struct {
		requester string
		slot      int64
	}
	attempts := []attempt{{"B", b.ID}, {"C", c.ID}}

	errs := make([]error, len(attempts))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, a := range attempts {
		wg.Add(1)
		go func(i int, a attempt) {
			defer wg.Done()
			<-start
			_, errs[i] = f.engine.RequestSwap(ctx, f.uid(a.requester), a.slot, target.ID)
		}(i, a)
	}
	close(start)
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.Conflict), "loser must see a conflict, got %v", err)
	}
	assert.Equal(t, 1, ok)

	pending, err := f.store.ListSwapRequestsByStatus(ctx, model.SwapPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	f.assertInvariant(t)
}

func TestRespondToSwap_ConcurrentAnswersApplyOnce(t *testing.T) {
	f := setup(t, "A", "B")
	ctx := context.Background()
	a := f.slot(t, "A", "a", at(9, 0), model.StatusSwappable)
	b := f.slot(t, "B", "b", at(10, 0), model.StatusSwappable)

	req, err := f.engine.RequestSwap(ctx, f.uid("A"), a.ID, b.ID)
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, accept := range []bool{true, false} {
		wg.Add(1)
		go func(i int, accept bool) {
			defer wg.Done()
			_, errs[i] = f.engine.RespondToSwap(ctx, f.uid("B"), req.ID, accept)
		}(i, accept)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			assert.True(t, apperr.Is(err, apperr.Conflict))
		}
	}
	assert.Equal(t, 1, failures)
	f.assertInvariant(t)
}

func TestListSwapRequests(t *testing.T) {
	f := setup(t, "A", "B", "C")
	ctx := context.Background()
	a1 := f.slot(t, "A", "a1", at(9, 0), model.StatusSwappable)
	a2 := f.slot(t, "A", "a2", at(13, 0), model.StatusSwappable)
	b := f.slot(t, "B", "b", at(10, 0), model.StatusSwappable)
	c := f.slot(t, "C", "c", at(11, 0), model.StatusSwappable)

	first, err := f.engine.RequestSwap(ctx, f.uid("B"), b.ID, a1.ID)
	require.NoError(t, err)
	second, err := f.engine.RequestSwap(ctx, f.uid("C"), c.ID, a2.ID)
	require.NoError(t, err)

	got, err := f.engine.ListSwapRequests(ctx, f.uid("A"))
	require.NoError(t, err)
	require.Len(t, got.Incoming, 2)
	assert.Empty(t, got.Outgoing)
	assert.Equal(t, second.ID, got.Incoming[0].ID)
	assert.Equal(t, first.ID, got.Incoming[1].ID)
	require.NotNil(t, got.Incoming[0].Requester)
	assert.Equal(t, "C", got.Incoming[0].Requester.Name)
	require.NotNil(t, got.Incoming[0].RequesterSlot)
	assert.Equal(t, "c", got.Incoming[0].RequesterSlot.Title)

	got, err = f.engine.ListSwapRequests(ctx, f.uid("B"))
	require.NoError(t, err)
	assert.Empty(t, got.Incoming)
	require.Len(t, got.Outgoing, 1)
	assert.Equal(t, first.ID, got.Outgoing[0].ID)
}
