package daybook

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/types"
)

func TestValidate(t *testing.T) {
	tr := &DailyTransaction{
		Type:           TypeTransfer,
		FromAccount:    "Cash",
		ToAccount:      "Bank",
		Amount:         types.MustMoney("10"),
		ReferenceIDOut: "OUT1",
		ReferenceIDIn:  "IN1",
	}
	assert.NoError(t, tr.Validate())

	tr.ToAccount = "Cash"
	assert.True(t, apperror.HasCode(tr.Validate(), apperror.CodeValidation))

	in := &DailyTransaction{Type: TypeIn, AccountName: "Cash", Amount: types.MustMoney("1"), ReferenceID: "IN2"}
	assert.NoError(t, in.Validate())

	in.Amount = types.Zero()
	assert.True(t, apperror.HasCode(in.Validate(), apperror.CodeValidation))
}
