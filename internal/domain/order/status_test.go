package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shop-orders/internal/domain/apperr"
	"github.com/xenking/shop-orders/internal/domain/auth"
)

func TestCheckTransition(t *testing.T) {
	for _, from := range Statuses {
		for _, to := range Statuses {
			err := CheckTransition(from, to)
			if from == to {
				assert.Equal(t, CodeNoStatusChange, apperr.CodeOf(err), "%s -> %s", from, to)
				continue
			}
			assert.NoError(t, err, "%s -> %s", from, to)
		}
	}

	assert.Equal(t, CodeInvalidStatus, apperr.CodeOf(CheckTransition(StatusPending, "teleported")))
}

func placeForStatus(t *testing.T, f *fixture) uuid.UUID {
	t.Helper()
	res, err := f.svc.PlaceOrder(context.Background(), f.request(1))
	require.NoError(t, err)
	return res.Order.ID
}

func TestUpdateStatus_NoOpRejected(t *testing.T) {
	f := newFixture(t)
	id := placeForStatus(t, f)

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{OrderID: id, Status: StatusPending})
	assert.Equal(t, CodeNoStatusChange, apperr.CodeOf(err))
	assert.Len(t, f.store.historyOf(id), 1, "no history row for a rejected transition")
	f.svc.Wait()
	assert.Empty(t, f.sender.messages())
}

func TestUpdateStatus_RecordsHistoryAndNotifies(t *testing.T) {
	f := newFixture(t)
	id := placeForStatus(t, f)

	o, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: id,
		Status:  StatusOutForDelivery,
		Comment: "Rider is on the way",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusOutForDelivery, o.Status)

	history := f.store.historyOf(id)
	require.Len(t, history, 2)
	assert.Equal(t, StatusOutForDelivery, history[1].Status)
	assert.Equal(t, ActorAdmin, history[1].UpdatedBy)
	assert.Equal(t, "Rider is on the way", history[1].Comment)

	f.svc.Wait()
	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "asha@example.com", msgs[0].To)
	assert.Equal(t, "Update on your order #1001", msgs[0].Subject)
	assert.Contains(t, msgs[0].HTML, "out for delivery")
	assert.Contains(t, msgs[0].HTML, "Rider is on the way")
}

func TestUpdateStatus_SideFields(t *testing.T) {
	f := newFixture(t)
	id := placeForStatus(t, f)

	o, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{OrderID: id, Status: StatusDelivered})
	require.NoError(t, err)
	require.NotNil(t, o.DeliveredAt)
	assert.Equal(t, testNow, *o.DeliveredAt)

	o, err = f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{OrderID: id, Status: StatusCancelled, Comment: "customer request"})
	require.NoError(t, err)
	require.NotNil(t, o.CancellationReason)
	assert.Equal(t, "customer request", *o.CancellationReason)

	stored, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
	require.NotNil(t, stored.CancellationReason)
	f.svc.Wait()
}

func TestUpdateStatus_NotificationFailureIgnored(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("smtp down")
	id := placeForStatus(t, f)

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{OrderID: id, Status: StatusAccepted})
	require.NoError(t, err)
	f.svc.Wait()
	assert.Len(t, f.sender.messages(), 1)
}

func TestUpdateStatus_NoEmailOnFile(t *testing.T) {
	f := newFixture(t)
	f.store.customers[f.userID].Email = ""
	id := placeForStatus(t, f)

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{OrderID: id, Status: StatusAccepted})
	require.NoError(t, err)
	f.svc.Wait()
	assert.Empty(t, f.sender.messages())
}

func TestUpdateStatus_Errors(t *testing.T) {
	f := newFixture(t)
	id := placeForStatus(t, f)

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{OrderID: uuid.New(), Status: StatusAccepted})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{OrderID: id, Status: "lost"})
	assert.Equal(t, CodeInvalidStatus, apperr.CodeOf(err))

	f.store.failOn = "AddHistory"
	_, err = f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{OrderID: id, Status: StatusAccepted})
	require.ErrorIs(t, err, errSimulated)
	stored, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status, "status update rolled back with its history row")
}

func TestGet_Visibility(t *testing.T) {
	f := newFixture(t)
	id := placeForStatus(t, f)

	o, err := f.svc.Get(context.Background(), auth.Principal{UserID: f.userID, Role: auth.RoleUser}, id)
	require.NoError(t, err)
	assert.Nil(t, o.Customer, "customer info is admin-only")

	_, err = f.svc.Get(context.Background(), auth.Principal{UserID: uuid.New(), Role: auth.RoleUser}, id)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	o, err = f.svc.Get(context.Background(), auth.Principal{UserID: uuid.New(), Role: auth.RoleAdmin}, id)
	require.NoError(t, err)
	require.NotNil(t, o.Customer)
	assert.Equal(t, "Asha", o.Customer.FirstName)
}

func TestListForUser_ExcludesUnpaid(t *testing.T) {
	f := newFixture(t)
	_, req := placeForVerify(t, f)
	placeForStatus(t, f)

	_, err := f.svc.VerifyPayment(context.Background(), req)
	require.NoError(t, err)

	page, err := NewPage(1, 10)
	require.NoError(t, err)
	list, err := f.svc.ListForUser(context.Background(), f.userID, page)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, int64(1), list.Orders[0].OrderNumber)
}

func TestListAll_InvalidStatusFilter(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ListAll(context.Background(), Filter{Page: Page{Page: 1, Limit: 10}, Statuses: []Status{"nope"}})
	assert.Equal(t, CodeInvalidStatus, apperr.CodeOf(err))
}

func TestNewPage(t *testing.T) {
	p, err := NewPage(0, 0)
	require.NoError(t, err)
	assert.Equal(t, Page{Page: 1, Limit: DefaultLimit}, p)
	assert.Equal(t, 0, p.Offset())
	assert.Equal(t, 4, Page{Page: 1, Limit: 30}.TotalPages(91))

	_, err = NewPage(-1, 10)
	assert.Equal(t, "invalid_page", apperr.CodeOf(err))
	_, err = NewPage(1, MaxLimit+1)
	assert.Equal(t, "invalid_limit", apperr.CodeOf(err))
}
