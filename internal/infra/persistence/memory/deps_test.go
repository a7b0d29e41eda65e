package memory

import (
	"strings"
	"testing"

	"sampletrack/testutil"
)

// moduleImportOtherThanDomain matches imports of this module that are not
// the domain package.
func moduleImportOtherThanDomain(path string) bool {
	return strings.HasPrefix(path, testutil.ModulePath+"/") && path != testutil.ModulePath+"/pkg/domain"
}

func TestImportsAreDomainOrStdlib(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(moduleImportOtherThanDomain, testutil.DriverImport), "the memory store only depends on domain contracts")
}
