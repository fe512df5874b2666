package handler_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khata/internal/audit/handler"
	id "khata/pkg/domain"
	audit "khata/pkg/platform/audit"
	"khata/pkg/platform/audit/publisher"
	auditmem "khata/pkg/platform/audit/store/memory"
	"khata/pkg/testutil"
)

type fixture struct {
	router  http.Handler
	events  *publisher.Publisher
	adminID id.UserID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	f := &fixture{
		events:  publisher.NewPublisher(auditmem.NewInMemoryStore()),
		adminID: id.NewUserID(),
	}

	h := handler.New(f.events, logger)
	r := chi.NewRouter()
	h.Register(r)
	f.router = r
	return f
}

func (f *fixture) emit(t *testing.T, event audit.Event) {
	t.Helper()
	require.NoError(t, f.events.Emit(context.Background(), event))
}

type listedEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	Category    string         `json:"category"`
	Action      string         `json:"action"`
	AccountID   string         `json:"account_id"`
	PerformedBy string         `json:"performed_by"`
	Reason      string         `json:"reason"`
	Details     map[string]any `json:"details"`
}

type listResponse struct {
	Status string        `json:"status"`
	Events []listedEvent `json:"events"`
}

func (f *fixture) list(t *testing.T, path string) *listResponse {
	t.Helper()
	req := testutil.NewRequest(t, http.MethodGet, path)
	req = testutil.WithCaller(t, req, f.adminID.String(), id.RoleAdmin)
	rr := testutil.DoRequest(f.router, req)
	testutil.AssertStatusOK(t, rr)
	return testutil.UnmarshalResponse[listResponse](t, rr)
}

func TestListEvents(t *testing.T) {
	t.Run("admin reads the trail newest first", func(t *testing.T) {
		f := newFixture(t)
		accountID := id.NewAccountID()
		agentID := id.NewUserID()

		f.emit(t, audit.Event{
			Action:      string(audit.EventDepositCreated),
			EntityType:  "deposit",
			AccountID:   accountID,
			PerformedBy: agentID,
			Details:     map[string]any{"amount": 400_00},
		})
		f.emit(t, audit.Event{
			Action:      string(audit.EventDepositCreateFailed),
			EntityType:  "deposit",
			AccountID:   accountID,
			PerformedBy: agentID,
			Reason:      "MONTHLY_AMOUNT_MISMATCH",
		})

		resp := f.list(t, "/audit/events")
		assert.Equal(t, "success", resp.Status)
		require.Len(t, resp.Events, 2)

		rejection := resp.Events[0]
		assert.Equal(t, "CREATE_DEPOSIT_FAILED", rejection.Action)
		assert.Equal(t, "security", rejection.Category)
		assert.Equal(t, "MONTHLY_AMOUNT_MISMATCH", rejection.Reason)
		assert.Equal(t, accountID.String(), rejection.AccountID)
		assert.Equal(t, agentID.String(), rejection.PerformedBy)
		assert.False(t, rejection.Timestamp.IsZero())

		commit := resp.Events[1]
		assert.Equal(t, "CREATE_DEPOSIT", commit.Action)
		assert.Equal(t, "compliance", commit.Category)
		assert.Empty(t, commit.Reason)
		assert.Equal(t, float64(400_00), commit.Details["amount"])
	})

	t.Run("limit narrows the window and the cap clamps", func(t *testing.T) {
		f := newFixture(t)
		for range 3 {
			f.emit(t, audit.Event{Action: string(audit.EventDepositCreated)})
		}

		assert.Len(t, f.list(t, "/audit/events?limit=2").Events, 2)
		assert.Len(t, f.list(t, "/audit/events?limit=9999").Events, 3)
	})

	t.Run("identifier fields are omitted on batch level events", func(t *testing.T) {
		f := newFixture(t)
		f.emit(t, audit.Event{
			Action:  string(audit.EventBulkDepositsCreated),
			Details: map[string]any{"total": 7},
		})

		resp := f.list(t, "/audit/events")
		require.Len(t, resp.Events, 1)
		assert.Equal(t, "operations", resp.Events[0].Category)
		assert.Empty(t, resp.Events[0].AccountID)
	})

	t.Run("a malformed limit is rejected", func(t *testing.T) {
		f := newFixture(t)
		for _, raw := range []string{"abc", "-1", "0"} {
			req := testutil.NewRequest(t, http.MethodGet, "/audit/events?limit="+raw)
			req = testutil.WithCaller(t, req, f.adminID.String(), id.RoleAdmin)
			rr := testutil.DoRequest(f.router, req)
			testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "VALIDATION")
		}
	})

	t.Run("only admins may read the trail", func(t *testing.T) {
		f := newFixture(t)
		for _, role := range []id.Role{id.RoleAgent, id.RoleManager, id.RoleClient} {
			req := testutil.NewRequest(t, http.MethodGet, "/audit/events")
			req = testutil.WithCaller(t, req, id.NewUserID().String(), role)
			rr := testutil.DoRequest(f.router, req)
			testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "FORBIDDEN")
		}
	})
}
