package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/issue-service/internal/domain"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

func TestAuthorizeCapabilityMatrix(t *testing.T) {
	f := newFixture(t, nil)
	staff := staffEmail

	tests := []struct {
		name  string
		email string
		op    Operation
		res   *Resource
		code  string
	}{
		{name: "anonymous", email: "", op: OpUpvote, code: apperrors.CodeUnauthenticated},
		{name: "unknown user", email: "ghost@example.com", op: OpUpvote, code: apperrors.CodeUnauthenticated},
		{name: "citizen creates issue", email: citizenEmail, op: OpCreateIssue},
		{name: "staff cannot create issue", email: staffEmail, op: OpCreateIssue, code: apperrors.CodeForbidden},
		{name: "admin cannot upvote", email: adminEmail, op: OpUpvote, code: apperrors.CodeForbidden},
		{name: "citizen cannot assign", email: citizenEmail, op: OpAssign, code: apperrors.CodeForbidden},
		{name: "admin assigns", email: adminEmail, op: OpAssign},
		{name: "owner edits", email: citizenEmail, op: OpEditOwnIssue, res: &Resource{OwnerEmail: citizenEmail}},
		{name: "stranger edits", email: otherEmail, op: OpEditOwnIssue, res: &Resource{OwnerEmail: citizenEmail}, code: apperrors.CodeForbidden},
		{name: "assigned staff transitions", email: staffEmail, op: OpTransitionStatus, res: &Resource{AssignedStaff: &staff}},
		{name: "unassigned issue transition", email: staffEmail, op: OpTransitionStatus, res: &Resource{}, code: apperrors.CodeForbidden},
		{name: "admin cannot transition", email: adminEmail, op: OpTransitionStatus, res: &Resource{AssignedStaff: &staff}, code: apperrors.CodeForbidden},
		{name: "admin reads any invoice", email: adminEmail, op: OpReadInvoice, res: &Resource{OwnerEmail: citizenEmail}},
		{name: "citizen reads foreign invoice", email: otherEmail, op: OpReadInvoice, res: &Resource{OwnerEmail: citizenEmail}, code: apperrors.CodeForbidden},
		{name: "staff reads own stats", email: staffEmail, op: OpReadOwnStats},
		{name: "citizen cannot read admin stats", email: citizenEmail, op: OpAdminStats, code: apperrors.CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := f.gate.Authorize(context.Background(), tt.email, tt.op, tt.res)
			if tt.code == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.email, user.Email)
				return
			}
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestAuthorizeBlockedCitizen(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.users.SetBlocked(ctx, citizenEmail, true))

	for _, op := range []Operation{OpCreateIssue, OpUpvote, OpCreatePaymentIntent, OpEditOwnIssue} {
		_, err := f.gate.Authorize(ctx, citizenEmail, op, &Resource{OwnerEmail: citizenEmail})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeBlocked), "%s: %v", op, err)
	}

	for _, op := range []Operation{OpVerifyPayment, OpReadOwnIssues, OpReadOwnPayments} {
		_, err := f.gate.Authorize(ctx, citizenEmail, op, nil)
		assert.NoError(t, err, op)
	}
}

func TestAuthorizeReadsCurrentRole(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.gate.Authorize(ctx, "Citizen@Example.com ", OpCreateIssue, nil)
	require.NoError(t, err)

	require.NoError(t, f.users.Delete(ctx, citizenEmail, domain.RoleCitizen))
	f.addUser(t, citizenEmail, domain.RoleStaff, "Rina")

	_, err = f.gate.Authorize(ctx, citizenEmail, OpCreateIssue, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}
