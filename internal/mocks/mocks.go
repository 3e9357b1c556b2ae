// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/wingminer/internal/carrier"
	"github.com/xkilldash9x/wingminer/internal/mission"
	"github.com/xkilldash9x/wingminer/internal/navigation"
	"github.com/xkilldash9x/wingminer/internal/station"
)

// -- Station Services Mock --

// MockServices mocks the in-station UI procedures driven by the orchestrator.
type MockServices struct {
	mock.Mock
}

func (m *MockServices) ScanMissions(ctx context.Context, capacity int) ([]mission.Record, error) {
	args := m.Called(ctx, capacity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]mission.Record), args.Error(1)
}

func (m *MockServices) CheckDepot(ctx context.Context) ([]mission.Record, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]mission.Record), args.Error(1)
}

func (m *MockServices) BuyForMission(ctx context.Context, req station.BuyRequest) (int, error) {
	args := m.Called(ctx, req)
	return args.Int(0), args.Error(1)
}

func (m *MockServices) TurnIn(ctx context.Context, rec mission.Record) (bool, error) {
	args := m.Called(ctx, rec)
	return args.Bool(0), args.Error(1)
}

// -- Navigator Mock --

// MockNavigator mocks navigation.Navigator.
type MockNavigator struct {
	mock.Mock
}

func (m *MockNavigator) TravelTo(ctx context.Context, dest navigation.Location) error {
	return m.Called(ctx, dest).Error(0)
}

// -- Carrier Selector Mock --

// MockCarrierSelector mocks the carrier choice.
type MockCarrierSelector struct {
	mock.Mock
}

func (m *MockCarrierSelector) Best(commodity string, stations []navigation.Location, blacklist *carrier.Blacklist) (carrier.Candidate, bool) {
	args := m.Called(commodity, stations, blacklist)
	return args.Get(0).(carrier.Candidate), args.Bool(1)
}
