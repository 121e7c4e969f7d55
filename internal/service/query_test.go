package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-chat-service/internal/errs"
	"github.com/psds-microservice/ticket-chat-service/internal/model"
	"github.com/psds-microservice/ticket-chat-service/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveLimit(t *testing.T) {
	cases := map[int]int{0: 5, -3: 5, 1: 1, 3: 3, 5: 5, 6: 5, 50: 5}
	for take, want := range cases {
		assert.Equal(t, want, EffectiveLimit(take), "take=%d", take)
	}
}

func TestListPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		f.create(t, "issue", "")
	}

	res, err := f.query.List(ctx, ListQuery{Take: 50})
	require.NoError(t, err)
	assert.Len(t, res.Data, 5)
	assert.Equal(t, ListMeta{Total: 12, Page: 1, Limit: 5, TotalPages: 3}, res.Meta)

	last, err := f.query.List(ctx, ListQuery{Take: 5, Page: 3})
	require.NoError(t, err)
	assert.Len(t, last.Data, 2)

	beyond, err := f.query.List(ctx, ListQuery{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, beyond.Data)
	assert.Equal(t, int64(12), beyond.Meta.Total)

	zero, err := f.query.List(ctx, ListQuery{Page: -1})
	require.NoError(t, err)
	assert.Equal(t, 1, zero.Meta.Page)
}

func TestListEmpty(t *testing.T) {
	f := newFixture(t)
	res, err := f.query.List(context.Background(), ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, res.Data)
	assert.Equal(t, int64(0), res.Meta.Total)
	assert.Equal(t, 0, res.Meta.TotalPages)
}

func TestListFiltersAndPopulates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	high := f.create(t, "Printer jam on floor 3", model.TicketPriorityHigh)
	f.create(t, "VPN drops", model.TicketPriorityLow)
	_, err := f.svc.Assign(ctx, high.ID, f.agent.ID)
	require.NoError(t, err)

	res, err := f.query.List(ctx, ListQuery{Priority: model.TicketPriorityHigh})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, high.ID, res.Data[0].ID)
	require.NotNil(t, res.Data[0].Assignee)
	assert.Equal(t, f.agent.ID, res.Data[0].Assignee.ID)
	require.NotNil(t, res.Data[0].Customer)
	assert.Equal(t, f.customer.ID, res.Data[0].Customer.ID)

	res, err = f.query.List(ctx, ListQuery{Search: "printer"})
	require.NoError(t, err)
	assert.Len(t, res.Data, 1)

	res, err = f.query.List(ctx, ListQuery{AssigneeID: &f.agent.ID})
	require.NoError(t, err)
	assert.Len(t, res.Data, 1)
}

func TestListSortOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b", "")
	f.create(t, "a", "")
	f.create(t, "c", "")

	res, err := f.query.List(ctx, ListQuery{SortBy: "issue", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, res.Data, 3)
	assert.Equal(t, "a", res.Data[0].Issue)
	assert.Equal(t, "c", res.Data[2].Issue)

	res, err = f.query.List(ctx, ListQuery{SortBy: "issue"})
	require.NoError(t, err)
	assert.Equal(t, "c", res.Data[0].Issue)

	_, err = f.query.List(ctx, ListQuery{SortBy: "issue; DROP TABLE tickets"})
	require.NoError(t, err)
}

func TestListValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.query.List(ctx, ListQuery{Status: "archived"})
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
	_, err = f.query.List(ctx, ListQuery{Priority: "urgent"})
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	start := time.Now()
	end := start.Add(-time.Hour)
	_, err = f.query.List(ctx, ListQuery{StartDate: &start, EndDate: &end})
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestListForCustomerIgnoresCustomerFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := storetest.SeedUser(t, f.db, model.UserRoleCustomer, "otto")
	mine := f.create(t, "mine", "")
	_, err := f.svc.Create(ctx, CreateInput{Issue: "theirs", CustomerID: other.ID})
	require.NoError(t, err)

	res, err := f.query.ListForCustomer(ctx, f.customer.ID, ListQuery{CustomerID: &other.ID})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, mine.ID, res.Data[0].ID)

	_, err = f.query.ListForCustomer(ctx, uuid.New(), ListQuery{})
	assert.ErrorIs(t, err, errs.ErrUserNotFound)
}
