package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSide(t *testing.T) {
	assert.True(t, Buy.Valid())
	assert.True(t, Sell.Valid())
	assert.False(t, Side("hold").Valid())
	assert.False(t, Side("").Valid())

	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
}

func TestOrderType(t *testing.T) {
	assert.True(t, MarketOrder.Valid())
	assert.True(t, LimitOrder.Valid())
	assert.False(t, OrderType("stop").Valid())
}

func TestCondition(t *testing.T) {
	for _, c := range []Condition{ConditionNormal, ConditionVolatile, ConditionCalm, ConditionExtreme} {
		assert.True(t, c.Valid(), string(c))
	}
	assert.False(t, Condition("sideways").Valid())
	assert.False(t, Condition("").Valid())
}
