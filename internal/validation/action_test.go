package validation

import (
	"errors"
	"testing"

	"github.com/mmeshcher/auction-system/internal/model"
)

func TestValidateAction(t *testing.T) {
	tests := []struct {
		name    string
		action  model.Action
		wantErr bool
	}{
		{
			name:    "valid bid",
			action:  model.Action{Type: model.ActionTypeBid, ItemID: "i1", UserID: "u1", Amount: 100},
			wantErr: false,
		},
		{
			name:    "bid without item",
			action:  model.Action{Type: model.ActionTypeBid, UserID: "u1", Amount: 100},
			wantErr: true,
		},
		{
			name:    "bid without user",
			action:  model.Action{Type: model.ActionTypeBid, ItemID: "i1", Amount: 100},
			wantErr: true,
		},
		{
			name:    "bid with zero amount",
			action:  model.Action{Type: model.ActionTypeBid, ItemID: "i1", UserID: "u1"},
			wantErr: true,
		},
		{
			name:    "valid purchase request",
			action:  model.Action{Type: model.ActionTypePurchaseRequest, ItemID: "i1", UserID: "u1"},
			wantErr: false,
		},
		{
			name:    "purchase request without user",
			action:  model.Action{Type: model.ActionTypePurchaseRequest, ItemID: "i1"},
			wantErr: true,
		},
		{
			name:    "accept request without ref action",
			action:  model.Action{Type: model.ActionTypeAcceptRequest, ItemID: "i1", UserID: "u1"},
			wantErr: true,
		},
		{
			name:    "valid accept request",
			action:  model.Action{Type: model.ActionTypeAcceptRequest, ItemID: "i1", UserID: "u1", RefActionID: "a1"},
			wantErr: false,
		},
		{
			name:    "unrouted type passes",
			action:  model.Action{Type: model.ActionTypeVerifyEmail},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAction(&tt.action)
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr && !errors.Is(err, ErrMissingField) {
				t.Fatalf("expected ErrMissingField, got %v", err)
			}
		})
	}
}
