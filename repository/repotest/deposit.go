package repotest

import (
	"testing"
	"time"

	"adrecharge-admin/model"
	"adrecharge-admin/model/deposit_model"

	"github.com/stretchr/testify/require"
)

// DepositSetupFunc 返回空的充值申请存储
type DepositSetupFunc func(t *testing.T) deposit_model.Repository

func newPending(applyNo string, userID int) *deposit_model.DepositRequest {
	return &deposit_model.DepositRequest{
		ApplyNo:           applyNo,
		UserID:            userID,
		AdAccountID:       1,
		Platform:          deposit_model.PlatformMeta,
		ExternalAccountID: "act_1",
		Amount:            d("100"),
		CommissionRate:    d("5"),
		CommissionAmount:  d("5"),
		TotalDebited:      d("105"),
		ApprovalStatus:    deposit_model.ApprovalPending,
		RechargeStatus:    deposit_model.RechargeNone,
		RechargeMethod:    deposit_model.MethodUnassigned,
	}
}

// TestDepositRepositoryContract 充值申请存储必须满足的行为
func TestDepositRepositoryContract(t *testing.T, setup DepositSetupFunc) {
	t.Run("ok, create and get", func(t *testing.T) {
		repo := setup(t)
		dep := newPending("DP1", 1)
		require.NoError(t, repo.Create(t.Context(), dep))
		require.NotZero(t, dep.ID)

		got, err := repo.Get(t.Context(), dep.ID)
		require.NoError(t, err)
		require.Equal(t, "DP1", got.ApplyNo)
		require.True(t, got.TotalDebited.Equal(d("105")))
	})

	t.Run("fail, get missing", func(t *testing.T) {
		repo := setup(t)
		_, err := repo.Get(t.Context(), 999999)
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("ok, transition bumps version and records history", func(t *testing.T) {
		repo := setup(t)
		dep := newPending("DP2", 1)
		require.NoError(t, repo.Create(t.Context(), dep))

		v := dep.Version
		dep.ApprovalStatus = deposit_model.ApprovalApproved
		dep.RechargeStatus = deposit_model.RechargeInProgress
		dep.RechargeMethod = deposit_model.MethodDirect
		dep.AttemptCount = 1
		err := repo.Transition(t.Context(), dep, v, &deposit_model.StatusHistory{
			ApplyNo:      dep.ApplyNo,
			Action:       "approve",
			FromApproval: deposit_model.ApprovalPending,
			ToApproval:   deposit_model.ApprovalApproved,
			FromRecharge: deposit_model.RechargeNone,
			ToRecharge:   deposit_model.RechargeInProgress,
			Method:       deposit_model.MethodDirect,
			Attempt:      1,
			Operator:     "admin",
		})
		require.NoError(t, err)
		require.Equal(t, v+1, dep.Version)

		got, err := repo.Get(t.Context(), dep.ID)
		require.NoError(t, err)
		require.Equal(t, deposit_model.RechargeInProgress, got.RechargeStatus)
		require.Equal(t, v+1, got.Version)

		hist, err := repo.History(t.Context(), dep.ID)
		require.NoError(t, err)
		require.Len(t, hist, 1)
		require.Equal(t, "approve", hist[0].Action)
	})

	t.Run("fail, transition with stale version", func(t *testing.T) {
		repo := setup(t)
		dep := newPending("DP3", 1)
		require.NoError(t, repo.Create(t.Context(), dep))

		stale := *dep
		dep.ApprovalStatus = deposit_model.ApprovalRejected
		require.NoError(t, repo.Transition(t.Context(), dep, dep.Version, nil))

		stale.ApprovalStatus = deposit_model.ApprovalApproved
		err := repo.Transition(t.Context(), &stale, stale.Version, &deposit_model.StatusHistory{Action: "approve", Operator: "x"})
		require.ErrorIs(t, err, model.ErrConcurrentModification)

		got, err := repo.Get(t.Context(), dep.ID)
		require.NoError(t, err)
		require.Equal(t, deposit_model.ApprovalRejected, got.ApprovalStatus)

		hist, err := repo.History(t.Context(), dep.ID)
		require.NoError(t, err)
		require.Empty(t, hist)
	})

	t.Run("ok, list filters and paginates", func(t *testing.T) {
		repo := setup(t)
		for i, no := range []string{"DP10", "DP11", "DP12"} {
			dep := newPending(no, 42)
			require.NoError(t, repo.Create(t.Context(), dep))
			if i == 0 {
				dep.ApprovalStatus = deposit_model.ApprovalRejected
				require.NoError(t, repo.Transition(t.Context(), dep, dep.Version, nil))
			}
		}

		rows, total, err := repo.List(t.Context(), deposit_model.ListFilter{
			UserID:         42,
			ApprovalStatus: deposit_model.ApprovalPending,
			PageSize:       1,
		})
		require.NoError(t, err)
		require.EqualValues(t, 2, total)
		require.Len(t, rows, 1)
		require.Equal(t, "DP12", rows[0].ApplyNo)
	})

	t.Run("ok, get many skips missing ids", func(t *testing.T) {
		repo := setup(t)
		dep := newPending("DP20", 1)
		require.NoError(t, repo.Create(t.Context(), dep))

		got, err := repo.GetMany(t.Context(), []int{dep.ID, 999999})
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Contains(t, got, dep.ID)
	})

	t.Run("ok, list stale", func(t *testing.T) {
		repo := setup(t)
		dep := newPending("DP30", 1)
		require.NoError(t, repo.Create(t.Context(), dep))
		dep.ApprovalStatus = deposit_model.ApprovalApproved
		dep.RechargeStatus = deposit_model.RechargeInProgress
		dep.RechargeMethod = deposit_model.MethodDirect
		require.NoError(t, repo.Transition(t.Context(), dep, dep.Version, nil))

		rows, err := repo.ListStale(t.Context(), deposit_model.StaleQuery{
			Approval:      deposit_model.ApprovalApproved,
			Recharge:      deposit_model.RechargeInProgress,
			Method:        deposit_model.MethodDirect,
			UpdatedBefore: time.Now().Add(time.Hour),
			Limit:         10,
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)

		rows, err = repo.ListStale(t.Context(), deposit_model.StaleQuery{
			Approval:      deposit_model.ApprovalApproved,
			Recharge:      deposit_model.RechargeInProgress,
			UpdatedBefore: time.Now().Add(-time.Hour),
		})
		require.NoError(t, err)
		require.Empty(t, rows)
	})
}
