package memorydir

import (
	"testing"

	"github.com/kasalabs/ussd-server-go/directory"
	"github.com/kasalabs/ussd-server-go/directory/dirtest"
)

func TestMemoryDirectory(t *testing.T) {
	dirtest.RunDirectoryTests(t, func(t *testing.T) directory.Directory {
		return New()
	})
}
