package memoryreports

import (
	"testing"

	"github.com/kasalabs/ussd-server-go/reports"
	"github.com/kasalabs/ussd-server-go/reports/reportstest"
)

func TestMemoryReportStore(t *testing.T) {
	reportstest.RunReportStoreTests(t, func(t *testing.T) reports.Store {
		return New()
	})
}
