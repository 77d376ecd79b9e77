package inventory

import (
	"strings"
	"testing"
	"time"

	"github.com/example/pos-ledger/internal/domain/apperr"
	"github.com/example/pos-ledger/internal/domain/product"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newTestProduct(stock int) *product.Product {
	return &product.Product{ID: "p-1", Name: "Cafe molido", Price: decimal.NewFromInt(20), CurrentStock: stock, MinStock: 5, IsAvailable: true, Version: 1}
}

func cost(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

// ============================================
// Apply Tests
// ============================================

func TestApply_Out(t *testing.T) {
	p := newTestProduct(10)

	m, err := Apply(p, Request{Type: MovementOut, Quantity: 3, Reason: "Venta - Orden: ORD-20260314-0001", UserID: "u-1"}, testNow)

	require.NoError(t, err)
	assert.Equal(t, 7, p.CurrentStock)
	assert.Equal(t, 2, p.Version)
	assert.Equal(t, testNow, p.UpdatedAt)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, MovementOut, m.Type)
	assert.Equal(t, 3, m.Quantity)
	assert.Equal(t, 7, m.NewStock)
	assert.Equal(t, "u-1", m.UserID)
	assert.Nil(t, m.PurchaseCost)
}

func TestApply_OutToZero(t *testing.T) {
	p := newTestProduct(3)

	m, err := Apply(p, Request{Type: MovementOut, Quantity: 3, UserID: "u-1"}, testNow)

	require.NoError(t, err)
	assert.Equal(t, 0, p.CurrentStock)
	assert.Equal(t, 0, m.NewStock)
}

func TestApply_OutInsufficient(t *testing.T) {
	p := newTestProduct(10)

	m, err := Apply(p, Request{Type: MovementOut, Quantity: 11, UserID: "u-1"}, testNow)

	assert.Nil(t, m)
	var stockErr *apperr.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 10, stockErr.Current)
	assert.Equal(t, 11, stockErr.Requested)
	assert.Equal(t, "p-1", stockErr.ProductID)
	assert.Equal(t, 10, p.CurrentStock)
	assert.Equal(t, 1, p.Version)
}

func TestApply_In(t *testing.T) {
	p := newTestProduct(10)

	m, err := Apply(p, Request{Type: MovementIn, Quantity: 5, UserID: "u-1", PurchaseCost: cost("12.50")}, testNow)

	require.NoError(t, err)
	assert.Equal(t, 15, p.CurrentStock)
	require.NotNil(t, m.PurchaseCost)
	assert.True(t, m.PurchaseCost.Equal(decimal.RequireFromString("12.5")))
}

func TestApply_CompensatingInWithoutCost(t *testing.T) {
	p := newTestProduct(7)

	m, err := Apply(p, Request{Type: MovementIn, Quantity: 3, UserID: "u-1", Compensating: true}, testNow)

	require.NoError(t, err)
	assert.Equal(t, 10, p.CurrentStock)
	assert.Nil(t, m.PurchaseCost)
}

func TestApply_Adjustment(t *testing.T) {
	tests := []struct {
		name  string
		stock int
		set   int
	}{
		{"lower", 10, 4},
		{"raise", 2, 40},
		{"to zero", 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProduct(tt.stock)

			m, err := Apply(p, Request{Type: MovementAdjustment, Quantity: tt.set, UserID: "u-1"}, testNow)

			require.NoError(t, err)
			assert.Equal(t, tt.set, p.CurrentStock)
			assert.Equal(t, tt.set, m.Quantity)
			assert.Equal(t, tt.set, m.NewStock)
		})
	}
}

func TestApply_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"unknown type", Request{Type: "MOVE", Quantity: 1, UserID: "u-1"}, "movementType"},
		{"zero out", Request{Type: MovementOut, Quantity: 0, UserID: "u-1"}, "quantity"},
		{"negative in", Request{Type: MovementIn, Quantity: -1, UserID: "u-1", PurchaseCost: cost("1")}, "quantity"},
		{"negative adjustment", Request{Type: MovementAdjustment, Quantity: -1, UserID: "u-1"}, "quantity"},
		{"missing user", Request{Type: MovementOut, Quantity: 1}, "userId"},
		{"reason too long", Request{Type: MovementOut, Quantity: 1, UserID: "u-1", Reason: strings.Repeat("x", 256)}, "reason"},
		{"in without cost", Request{Type: MovementIn, Quantity: 1, UserID: "u-1"}, "purchaseCost"},
		{"in with sub-cent cost", Request{Type: MovementIn, Quantity: 1, UserID: "u-1", PurchaseCost: cost("0.125")}, "purchaseCost"},
		{"in with zero cost", Request{Type: MovementIn, Quantity: 1, UserID: "u-1", PurchaseCost: cost("0")}, "purchaseCost"},
		{"out with cost", Request{Type: MovementOut, Quantity: 1, UserID: "u-1", PurchaseCost: cost("3")}, "purchaseCost"},
		{"adjustment with cost", Request{Type: MovementAdjustment, Quantity: 1, UserID: "u-1", PurchaseCost: cost("3")}, "purchaseCost"},
		{"compensating in with cost", Request{Type: MovementIn, Quantity: 1, UserID: "u-1", PurchaseCost: cost("3"), Compensating: true}, "purchaseCost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProduct(10)

			m, err := Apply(p, tt.req, testNow)

			assert.Nil(t, m)
			var vErr *apperr.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Equal(t, 10, p.CurrentStock)
		})
	}
}

// ============================================
// Replay Tests
// ============================================

func TestReplay_ReproducesStock(t *testing.T) {
	p := &product.Product{ID: "p-1"}
	requests := []Request{
		{Type: MovementIn, Quantity: 10, UserID: "u-1", PurchaseCost: cost("5")},
		{Type: MovementOut, Quantity: 3, UserID: "u-1"},
		{Type: MovementAdjustment, Quantity: 20, UserID: "u-1"},
		{Type: MovementOut, Quantity: 4, UserID: "u-1"},
		{Type: MovementIn, Quantity: 4, UserID: "u-1", Compensating: true},
	}

	var movements []*Movement
	for _, req := range requests {
		m, err := Apply(p, req, testNow)
		require.NoError(t, err)
		movements = append(movements, m)
	}

	assert.Equal(t, 20, p.CurrentStock)
	assert.Equal(t, p.CurrentStock, Replay(movements))
	assert.NoError(t, Verify(p.ID, p.CurrentStock, movements))
}

func TestReplay_Empty(t *testing.T) {
	assert.Equal(t, 0, Replay(nil))
	assert.NoError(t, Verify("p-1", 0, nil))
}

func TestVerify_DetectsDrift(t *testing.T) {
	movements := []*Movement{
		{Type: MovementIn, Quantity: 10, NewStock: 10},
		{Type: MovementOut, Quantity: 3, NewStock: 6},
	}

	err := Verify("p-1", 7, movements)

	var drift *DriftError
	require.ErrorAs(t, err, &drift)
	assert.Equal(t, 7, drift.Replayed)
	assert.Equal(t, 1, drift.FirstBadSnapshot)
}

func TestVerify_DetectsCounterMismatch(t *testing.T) {
	movements := []*Movement{{Type: MovementIn, Quantity: 10, NewStock: 10}}

	err := Verify("p-1", 9, movements)

	var drift *DriftError
	require.ErrorAs(t, err, &drift)
	assert.Equal(t, 9, drift.Stored)
	assert.Equal(t, 10, drift.Replayed)
	assert.Equal(t, -1, drift.FirstBadSnapshot)
}
