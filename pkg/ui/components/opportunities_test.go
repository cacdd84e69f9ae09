package components

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpportunitiesComponent_Scroll(t *testing.T) {
	o := NewOpportunitiesComponent(5, 2)
	for i := range 7 {
		o.Add(OpportunityRow{Cycle: fmt.Sprintf("C%d", i)})
	}
	assert.Equal(t, 5, o.Len(), "oldest rows are dropped")
	assert.Contains(t, o.View(), "C6")

	for range 10 {
		o.ScrollDown()
	}
	assert.Equal(t, 3, o.offset, "window stops at the oldest row")
	assert.Contains(t, o.View(), "C2")
	assert.NotContains(t, o.View(), "C6")

	o.ScrollUp()
	assert.Equal(t, 2, o.offset)

	o.Add(OpportunityRow{Cycle: "C7"})
	assert.Equal(t, 3, o.offset, "a scrolled window keeps its rows in view")

	o.Clear()
	assert.Zero(t, o.Len())
	assert.Contains(t, o.View(), "No cycle evaluated yet")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "USDT_BTC", truncate("USDT_BTC", 8))
	assert.Equal(t, "USDT_B…", truncate("USDT_BTC_ETH", 7))
}
