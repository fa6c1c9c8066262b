package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive with at most 2 decimal places")
	ErrInvalidRate   = errors.New("commission rate must be between 0 and 100 with at most 2 decimal places")
)

var hundred = decimal.NewFromInt(100)

// Quote 充值报价: 申请金额 + 手续费 = 实扣金额
type Quote struct {
	Amount     decimal.Decimal `json:"amount"`
	Rate       decimal.Decimal `json:"rate"`
	Commission decimal.Decimal `json:"commission"`
	Total      decimal.Decimal `json:"total"`
}

// Calculate 计算手续费, 结果四舍五入到分
func Calculate(amount, rate decimal.Decimal) (Quote, error) {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return Quote{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if err := ValidateRate(rate); err != nil {
		return Quote{}, err
	}

	commission := amount.Mul(rate).Div(hundred).Round(2)
	return Quote{
		Amount:     amount,
		Rate:       rate,
		Commission: commission,
		Total:      amount.Add(commission),
	}, nil
}

// ValidateRate 费率存储为 decimal(5,2), 超出精度的费率无法还原手续费
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) || !rate.Equal(rate.Round(2)) {
		return fmt.Errorf("%w: %s", ErrInvalidRate, rate)
	}
	return nil
}

// ParseAmount 解析金额字符串
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.IsPositive() || !d.Equal(d.Round(2)) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}
