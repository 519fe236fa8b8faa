package services

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockFundingAdapter struct {
	mock.Mock
}

func (m *mockFundingAdapter) CreateIntent(ctx context.Context, amount int64, currency string) (*FundingIntent, error) {
	args := m.Called(ctx, amount, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*FundingIntent), args.Error(1)
}

func (m *mockFundingAdapter) ConfirmIntent(ctx context.Context, intentRef string) (bool, error) {
	args := m.Called(ctx, intentRef)
	return args.Bool(0), args.Error(1)
}

func (m *mockFundingAdapter) ReverseIntent(ctx context.Context, intentRef string, amount int64) (string, error) {
	args := m.Called(ctx, intentRef, amount)
	return args.String(0), args.Error(1)
}
