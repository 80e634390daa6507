package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/interfaces"
	"github.com/basedgoydev/greed-farm/domain/testhelpers"
	"github.com/basedgoydev/greed-farm/events"
	"github.com/google/uuid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testWagerSettings = WagerSettings{
	CommitmentTTL:       5 * time.Minute,
	MinClientSeedLength: 8,
}

type wagerFixture struct {
	commitments *testhelpers.MockWagerCommitmentRepository
	records     *testhelpers.MockWagerRecordRepository
	users       *testhelpers.MockUserRepository
	states      *testhelpers.MockGlobalStateRepository
	history     *testhelpers.MockBalanceHistoryRepository
	publisher   *testhelpers.MockEventPublisher
	service     *WagerService
}

func newWagerFixture() *wagerFixture {
	f := &wagerFixture{
		commitments: new(testhelpers.MockWagerCommitmentRepository),
		records:     new(testhelpers.MockWagerRecordRepository),
		users:       new(testhelpers.MockUserRepository),
		states:      new(testhelpers.MockGlobalStateRepository),
		history:     new(testhelpers.MockBalanceHistoryRepository),
		publisher:   new(testhelpers.MockEventPublisher),
	}
	f.publisher.On("Publish", mock.Anything).Return(nil)
	seeds := func() (string, error) { return testSeed, nil }
	f.service = NewWagerService(f.commitments, f.records, f.users, f.states, f.history, f.publisher, testWagerSettings, seeds)
	return f
}

func testCommitment(wallet string) *entities.WagerCommitment {
	return &entities.WagerCommitment{
		ID:             uuid.MustParse("6f1c2d3e-4b5a-4c6d-8e7f-90a1b2c3d4e5"),
		Wallet:         wallet,
		SecretSeed:     testSeed,
		CommitmentHash: CommitmentHash(testSeed),
		ExpiresAt:      testNow.Add(5 * time.Minute),
		CreatedAt:      testNow,
	}
}

// expectSettlement wires every store call a successful settlement makes.
func (f *wagerFixture) expectSettlement(commitment *entities.WagerCommitment, user *entities.User, state *entities.GlobalState) {
	f.commitments.On("GetByIDForUpdate", mock.Anything, commitment.ID).Return(commitment, nil)
	f.commitments.On("MarkConsumed", mock.Anything, commitment.ID, mock.Anything).Return(nil)
	f.users.On("GetByWalletForUpdate", mock.Anything, user.Wallet).Return(user, nil)
	f.users.On("UpdateBalances", mock.Anything, user).Return(nil)
	f.states.On("GetForUpdate", mock.Anything).Return(state, nil)
	f.states.On("Save", mock.Anything, state).Return(nil)
	f.records.On("Create", mock.Anything, mock.AnythingOfType("*entities.WagerRecord")).Run(func(args mock.Arguments) {
		args.Get(1).(*entities.WagerRecord).ID = 42
	}).Return(nil)
	f.history.On("Record", mock.Anything, mock.AnythingOfType("*entities.BalanceHistory")).Return(nil)
}

func TestWagerService_CreateCommitment(t *testing.T) {
	t.Parallel()

	t.Run("issues a new commitment", func(t *testing.T) {
		f := newWagerFixture()
		f.commitments.On("GetActiveByWallet", mock.Anything, walletA, testNow).Return(nil, nil)
		f.commitments.On("Create", mock.Anything, mock.MatchedBy(func(c *entities.WagerCommitment) bool {
			return c.Wallet == walletA && c.SecretSeed == testSeed && !c.Consumed
		})).Return(nil)

		ticket, err := f.service.CreateCommitment(context.Background(), walletA, testNow)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, ticket.ID)
		assert.Equal(t, CommitmentHash(testSeed), ticket.CommitmentHash)
		assert.Equal(t, testNow.Add(5*time.Minute), ticket.ExpiresAt)
		f.publisher.AssertCalled(t, "Publish", mock.AnythingOfType("events.CommitmentCreatedEvent"))
	})

	t.Run("returns the pending commitment", func(t *testing.T) {
		f := newWagerFixture()
		existing := testCommitment(walletA)
		f.commitments.On("GetActiveByWallet", mock.Anything, walletA, testNow).Return(existing, nil)

		ticket, err := f.service.CreateCommitment(context.Background(), walletA, testNow)
		require.NoError(t, err)

		assert.Equal(t, existing.ID, ticket.ID)
		f.commitments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("rejects malformed wallet", func(t *testing.T) {
		f := newWagerFixture()

		_, err := f.service.CreateCommitment(context.Background(), "0OIl", testNow)
		assert.ErrorIs(t, err, entities.ErrInvalidWallet)
		f.commitments.AssertNotCalled(t, "GetActiveByWallet", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("seed source failure", func(t *testing.T) {
		f := newWagerFixture()
		f.commitments.On("GetActiveByWallet", mock.Anything, walletA, testNow).Return(nil, nil)
		f.service.seeds = func() (string, error) { return "", errors.New("entropy exhausted") }

		_, err := f.service.CreateCommitment(context.Background(), walletA, testNow)
		assert.Error(t, err)
		f.commitments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestWagerService_ValidateSettleRequest(t *testing.T) {
	t.Parallel()

	valid := interfaces.SettleRequest{
		Wallet:       walletA,
		RiskPercent:  entities.RiskHalf,
		CommitmentID: "6f1c2d3e-4b5a-4c6d-8e7f-90a1b2c3d4e5",
		ClientSeed:   "client-seed",
	}

	tests := []struct {
		name    string
		mutate  func(*interfaces.SettleRequest)
		wantErr error
	}{
		{"valid", func(*interfaces.SettleRequest) {}, nil},
		{"bad wallet", func(r *interfaces.SettleRequest) { r.Wallet = "short" }, entities.ErrInvalidWallet},
		{"bad percent", func(r *interfaces.SettleRequest) { r.RiskPercent = 33 }, entities.ErrInvalidRiskPercent},
		{"short seed", func(r *interfaces.SettleRequest) { r.ClientSeed = "1234567" }, entities.ErrClientSeedTooShort},
		{"longest seed", func(r *interfaces.SettleRequest) { r.ClientSeed = strings.Repeat("s", MaxClientSeedLength) }, nil},
		{"long seed", func(r *interfaces.SettleRequest) { r.ClientSeed = strings.Repeat("s", MaxClientSeedLength+1) }, entities.ErrClientSeedTooLong},
		{"bad id", func(r *interfaces.SettleRequest) { r.CommitmentID = "nope" }, entities.ErrInvalidCommitmentID},
		{"wallet checked before percent", func(r *interfaces.SettleRequest) { r.Wallet = ""; r.RiskPercent = 1 }, entities.ErrInvalidWallet},
	}

	service := newWagerFixture().service
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			_, err := service.ValidateSettleRequest(req)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWagerService_Settle_InvalidRequestTouchesNothing(t *testing.T) {
	t.Parallel()

	f := newWagerFixture()
	_, err := f.service.Settle(context.Background(), interfaces.SettleRequest{
		Wallet:       walletA,
		RiskPercent:  entities.RiskAll,
		CommitmentID: testCommitment(walletA).ID.String(),
		ClientSeed:   "short",
	}, testNow)

	assert.ErrorIs(t, err, entities.ErrClientSeedTooShort)
	f.commitments.AssertNotCalled(t, "GetByIDForUpdate", mock.Anything, mock.Anything)
	f.users.AssertNotCalled(t, "GetByWalletForUpdate", mock.Anything, mock.Anything)
}

func TestWagerService_Settle_Outcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		claimable     uint64
		pot           uint64
		risk          entities.RiskPercent
		win           bool
		wantRisk      uint64
		wantPayout    uint64
		wantClaimable uint64
		wantPot       uint64
		wantHistory   entities.TransactionType
	}{
		{"win capped by exact pot", 100, 100, entities.RiskAll, true, 100, 100, 200, 0, entities.TransactionTypeWagerWin},
		{"win against empty pot", 100, 0, entities.RiskAll, true, 100, 0, 100, 0, ""},
		{"win partly capped", 400, 60, entities.RiskQuarter, true, 100, 60, 460, 0, entities.TransactionTypeWagerWin},
		{"win uncapped", 1000, 5000, entities.RiskHalf, true, 500, 500, 1500, 4500, entities.TransactionTypeWagerWin},
		{"loss feeds pot", 1000, 10, entities.RiskHalf, false, 500, 0, 500, 510, entities.TransactionTypeWagerLoss},
		{"loss of everything", 77, 0, entities.RiskAll, false, 77, 0, 0, 77, entities.TransactionTypeWagerLoss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWagerFixture()
			commitment := testCommitment(walletA)
			user := testUser(7, walletA, tt.claimable)
			state := testState(3, 0, tt.pot)
			f.expectSettlement(commitment, user, state)

			outcome, err := f.service.Settle(context.Background(), interfaces.SettleRequest{
				Wallet:       walletA,
				RiskPercent:  tt.risk,
				CommitmentID: commitment.ID.String(),
				ClientSeed:   clientSeedFor(t, testSeed, tt.win),
			}, testNow)
			require.NoError(t, err)

			record := outcome.Record
			assert.Equal(t, tt.win, record.Won)
			assert.Equal(t, tt.wantRisk, record.RiskAmount.Uint64())
			assert.Equal(t, tt.wantPayout, record.Payout.Uint64())
			assert.Equal(t, tt.wantClaimable, outcome.NewClaimable.Uint64())
			assert.Equal(t, tt.wantClaimable, user.Claimable.Uint64())
			assert.Equal(t, tt.wantPot, state.GreedPot.Uint64())
			assert.Equal(t, tt.pot, record.PotBefore.Uint64())
			assert.Equal(t, tt.wantPot, record.PotAfter.Uint64())
			assert.Equal(t, int64(3), record.EpochNumber)
			assert.Equal(t, int64(42), record.ID)

			verification := VerifyWager(record)
			assert.True(t, verification.Valid())

			if tt.wantHistory == "" {
				f.history.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
			} else {
				f.history.AssertCalled(t, "Record", mock.Anything, mock.MatchedBy(func(h *entities.BalanceHistory) bool {
					return h.TransactionType == tt.wantHistory && *h.RelatedID == 42
				}))
			}
			f.commitments.AssertCalled(t, "MarkConsumed", mock.Anything, commitment.ID, testNow)
			f.publisher.AssertCalled(t, "Publish", mock.MatchedBy(func(e events.WagerSettledEvent) bool {
				return e.WagerID == 42 && e.Won == tt.win
			}))
		})
	}
}

func TestWagerService_Settle_Rejections(t *testing.T) {
	t.Parallel()

	consumedAt := testNow.Add(-time.Minute)

	tests := []struct {
		name       string
		commitment func() *entities.WagerCommitment
		claimable  uint64
		wantErr    error
	}{
		{
			name:       "unknown commitment",
			commitment: func() *entities.WagerCommitment { return nil },
			wantErr:    entities.ErrCommitmentNotFound,
		},
		{
			name: "expired commitment",
			commitment: func() *entities.WagerCommitment {
				c := testCommitment(walletA)
				c.ExpiresAt = testNow.Add(-time.Second)
				return c
			},
			claimable: 100,
			wantErr:   entities.ErrCommitmentExpired,
		},
		{
			name: "expires exactly now",
			commitment: func() *entities.WagerCommitment {
				c := testCommitment(walletA)
				c.ExpiresAt = testNow
				return c
			},
			claimable: 100,
			wantErr:   entities.ErrCommitmentExpired,
		},
		{
			name: "consumed commitment",
			commitment: func() *entities.WagerCommitment {
				c := testCommitment(walletA)
				c.Consumed = true
				c.ConsumedAt = &consumedAt
				return c
			},
			claimable: 100,
			wantErr:   entities.ErrCommitmentConsumed,
		},
		{
			name:       "foreign commitment",
			commitment: func() *entities.WagerCommitment { return testCommitment(walletB) },
			claimable:  100,
			wantErr:    entities.ErrCommitmentForeign,
		},
		{
			name:       "nothing to risk",
			commitment: func() *entities.WagerCommitment { return testCommitment(walletA) },
			claimable:  0,
			wantErr:    entities.ErrNothingToRisk,
		},
		{
			name:       "quarter of dust rounds to zero",
			commitment: func() *entities.WagerCommitment { return testCommitment(walletA) },
			claimable:  3,
			wantErr:    entities.ErrNothingToRisk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWagerFixture()
			id := testCommitment(walletA).ID
			f.commitments.On("GetByIDForUpdate", mock.Anything, id).Return(tt.commitment(), nil)
			f.users.On("GetByWalletForUpdate", mock.Anything, walletA).Return(testUser(7, walletA, tt.claimable), nil)

			_, err := f.service.Settle(context.Background(), interfaces.SettleRequest{
				Wallet:       walletA,
				RiskPercent:  entities.RiskQuarter,
				CommitmentID: id.String(),
				ClientSeed:   "client-seed",
			}, testNow)

			assert.ErrorIs(t, err, tt.wantErr)
			f.commitments.AssertNotCalled(t, "MarkConsumed", mock.Anything, mock.Anything, mock.Anything)
			f.users.AssertNotCalled(t, "UpdateBalances", mock.Anything, mock.Anything)
			f.records.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestWagerService_Settle_LostConsumeRace(t *testing.T) {
	t.Parallel()

	f := newWagerFixture()
	commitment := testCommitment(walletA)
	f.commitments.On("GetByIDForUpdate", mock.Anything, commitment.ID).Return(commitment, nil)
	f.commitments.On("MarkConsumed", mock.Anything, commitment.ID, testNow).Return(entities.ErrCommitmentConsumed)
	f.users.On("GetByWalletForUpdate", mock.Anything, walletA).Return(testUser(7, walletA, 100), nil)
	f.states.On("GetForUpdate", mock.Anything).Return(testState(1, 0, 100), nil)

	_, err := f.service.Settle(context.Background(), interfaces.SettleRequest{
		Wallet:       walletA,
		RiskPercent:  entities.RiskAll,
		CommitmentID: commitment.ID.String(),
		ClientSeed:   "client-seed",
	}, testNow)

	assert.ErrorIs(t, err, entities.ErrCommitmentConsumed)
	f.users.AssertNotCalled(t, "UpdateBalances", mock.Anything, mock.Anything)
}

func TestWagerService_Verify(t *testing.T) {
	t.Parallel()

	f := newWagerFixture()
	client := clientSeedFor(t, testSeed, true)
	combined, err := CombinedHash(testSeed, client)
	require.NoError(t, err)

	record := &entities.WagerRecord{
		ID:             9,
		Wallet:         walletA,
		Won:            true,
		SecretSeed:     testSeed,
		CommitmentHash: CommitmentHash(testSeed),
		ClientSeed:     client,
		CombinedHash:   combined,
	}
	f.records.On("GetByID", mock.Anything, int64(9)).Return(record, nil)
	f.records.On("GetByID", mock.Anything, int64(10)).Return(nil, nil)

	verification, err := f.service.Verify(context.Background(), 9)
	require.NoError(t, err)
	assert.True(t, verification.Valid())
	assert.Equal(t, int64(9), verification.WagerID)

	_, err = f.service.Verify(context.Background(), 10)
	assert.ErrorIs(t, err, entities.ErrWagerNotFound)
}

func TestWagerService_CleanupCommitments(t *testing.T) {
	t.Parallel()

	f := newWagerFixture()
	f.commitments.On("DeleteStale", mock.Anything, testNow.Add(-5*time.Minute)).Return(int64(4), nil)

	deleted, err := f.service.CleanupCommitments(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
}
