package service

import (
	"context"
	"testing"

	"compliancehub/internal/apperror"
	"compliancehub/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	e := newTestEnv(t)
	body := []byte(`{"type":"checkout.session.completed"}`)
	sig := Sign("whsec", body)

	assert.NoError(t, e.billing.VerifySignature(body, sig))
	assert.NoError(t, e.billing.VerifySignature(body, "sha256="+sig))
	assert.Equal(t, ErrInvalidSignature, e.billing.VerifySignature(body, Sign("other", body)))
	assert.Equal(t, ErrInvalidSignature, e.billing.VerifySignature(append(body, ' '), sig))
	assert.Equal(t, ErrInvalidSignature, e.billing.VerifySignature(body, "zz"))
	assert.Equal(t, ErrInvalidSignature, e.billing.VerifySignature(body, ""))
}

func TestHandleEvent_Transitions(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, admin := e.register(t, "admin@acme.com", "Acme")
	org := admin.OrganizationID.String()

	sub, changed, err := e.billing.HandleEvent(ctx, BillingEvent{Type: EventCheckoutCompleted, OrganizationID: org, SessionID: "cs_1"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.SubscriptionActive, sub.Status)
	assert.Equal(t, "cs_1", sub.ExternalRef)
	assert.NotNil(t, sub.ActivatedAt)

	// Replays are ignored
	_, changed, err = e.billing.HandleEvent(ctx, BillingEvent{Type: EventCheckoutCompleted, OrganizationID: org})
	require.NoError(t, err)
	assert.False(t, changed)

	_, changed, err = e.billing.HandleEvent(ctx, BillingEvent{Type: "invoice.paid", OrganizationID: org})
	require.NoError(t, err)
	assert.False(t, changed)

	sub, changed, err = e.billing.HandleEvent(ctx, BillingEvent{Type: EventCheckoutExpired, OrganizationID: org})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.SubscriptionExpired, sub.Status)

	// An expired subscription does not reactivate from a stale completion
	_, changed, err = e.billing.HandleEvent(ctx, BillingEvent{Type: EventCheckoutCompleted, OrganizationID: org})
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, 2, countAction(e.auditActions(t, admin), model.ActionUpdateSubscription))

	_, _, err = e.billing.HandleEvent(ctx, BillingEvent{Type: EventCheckoutCompleted, OrganizationID: uuid.NewString()})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, _, err = e.billing.HandleEvent(ctx, BillingEvent{Type: EventCheckoutCompleted, OrganizationID: "acme"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
